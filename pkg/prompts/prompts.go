// Package prompts holds the persona of every chat handler: its system
// prompt, speech voice and display name.
package prompts

import (
	"errors"
	"fmt"
	"strings"
)

// Handler names a bot persona.
type Handler string

const (
	Zeo       Handler = "zeo"
	Assistant Handler = "assistant"
	Rizz      Handler = "rizz"
	Rate      Handler = "rate"
	React     Handler = "react"
	WordCount Handler = "word_count"
	Poetry    Handler = "poetry"
	Roaster   Handler = "roaster"
)

var ErrUnknownHandler = errors.New("unknown handler")

// ElevenLabs voices.
const (
	VoiceBrian  = "nPczCjzI2devNBz1zQrb"
	VoiceAyinde = "77aEIu0qStu8Jwv1EdhX"
	VoiceCallum = "N2lVS1w4EtoT3dr4eOWO"
)

// Persona is the static configuration of one handler.
type Persona struct {
	Handler     Handler
	DisplayName string
	Voice       string
	System      string
}

var aliases = map[string]Handler{
	"ai":        Assistant,
	"wordcount": WordCount,
	"roast":     Roaster,
}

// Parse resolves a handler name or alias, ignoring case and surrounding space.
func Parse(name string) (Handler, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if h, ok := aliases[key]; ok {
		return h, nil
	}
	h := Handler(key)
	if _, ok := personas[h]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
	return h, nil
}

// All lists the handlers in a stable order.
func All() []Handler {
	return []Handler{Zeo, Assistant, Rizz, Rate, React, WordCount, Poetry, Roaster}
}

// Lookup returns the persona of a known handler.
func Lookup(h Handler) (Persona, bool) {
	p, ok := personas[h]
	return p, ok
}

// SystemPrompt falls back to the assistant prompt for unknown handlers.
func SystemPrompt(h Handler) string {
	if p, ok := personas[h]; ok {
		return p.System
	}
	return personas[Assistant].System
}

// Voice falls back to the default voice for handlers without one.
func Voice(h Handler) string {
	if p, ok := personas[h]; ok && p.Voice != "" {
		return p.Voice
	}
	return VoiceBrian
}

// ThreadID is the default conversation thread shared by a handler.
func ThreadID(h Handler) string { return string(h) + "_thread" }

func (h Handler) String() string { return string(h) }
