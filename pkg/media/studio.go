package media

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Backend names accepted by the image commands.
const (
	BackendGemini = "gemini"
	BackendFlux   = "flux"
	BackendDalle  = "dall-e"
)

// Studio routes media requests to the configured backends and persists the
// results.
type Studio struct {
	generators map[string]Generator
	editors    map[string]Editor
	speech     *ElevenLabs
	writer     *Writer
	logger     *zap.Logger
	now        func() time.Time
}

func NewStudio(writer *Writer, logger *zap.Logger) *Studio {
	if writer == nil {
		writer = NewWriter("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Studio{
		generators: make(map[string]Generator),
		editors:    make(map[string]Editor),
		writer:     writer,
		logger:     logger.Named("media"),
		now:        time.Now,
	}
}

func (s *Studio) AddGenerator(name string, g Generator) { s.generators[normalize(name)] = g }
func (s *Studio) AddEditor(name string, e Editor)       { s.editors[normalize(name)] = e }
func (s *Studio) SetSpeech(e *ElevenLabs)               { s.speech = e }

// Generators lists the configured generation backends.
func (s *Studio) Generators() []string { return sortedKeys(s.generators) }

// Editors lists the configured edit backends.
func (s *Studio) Editors() []string { return sortedKeys(s.editors) }

// Generate produces an image with the named backend and saves it.
func (s *Studio) Generate(ctx context.Context, backend, prompt string) (Artifact, error) {
	g, ok := s.generators[normalize(backend)]
	if !ok {
		return Artifact{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownBackend, backend, strings.Join(s.Generators(), ", "))
	}
	start := s.now()
	img, err := g.Generate(ctx, prompt)
	if err != nil {
		return Artifact{}, err
	}
	return s.store(img, "image", normalize(backend), start)
}

// Edit modifies src with the named backend and saves the result.
func (s *Studio) Edit(ctx context.Context, backend, prompt string, src Image) (Artifact, error) {
	e, ok := s.editors[normalize(backend)]
	if !ok {
		return Artifact{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownBackend, backend, strings.Join(s.Editors(), ", "))
	}
	start := s.now()
	img, err := e.Edit(ctx, prompt, src)
	if err != nil {
		return Artifact{}, err
	}
	if img.MIME == "" {
		img.MIME = src.MIME
	}
	return s.store(img, "image", "edit_"+normalize(backend), start)
}

// Speak synthesises text with the given voice and saves the mp3.
func (s *Studio) Speak(ctx context.Context, voiceID, text string) (Artifact, error) {
	if s.speech == nil {
		return Artifact{}, fmt.Errorf("%w: speech is not configured", ErrUnknownBackend)
	}
	audio, err := s.speech.Speak(ctx, voiceID, text)
	if err != nil {
		return Artifact{}, err
	}
	art, err := s.writer.Save("audio", "speech", ".mp3", audio)
	if err != nil {
		return Artifact{}, err
	}
	s.logger.Info("speech saved", zap.String("path", art.Path), zap.Int64("bytes", art.Size))
	return art, nil
}

func (s *Studio) store(img Image, kind, prefix string, start time.Time) (Artifact, error) {
	art, err := s.writer.Save(kind, prefix, ExtensionFor(img.MIME), img.Data)
	if err != nil {
		return Artifact{}, err
	}
	elapsed := s.now().Sub(start).Seconds()
	art.Caption = fmt.Sprintf("%s\n`Execution time: %.2f seconds`", strings.TrimSpace(img.Caption), elapsed)
	s.logger.Info("image saved", zap.String("path", art.Path), zap.Int64("bytes", art.Size), zap.Float64("seconds", elapsed))
	return art, nil
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "dalle" {
		return BackendDalle
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
