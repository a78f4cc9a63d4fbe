package prompts

import (
	"errors"
	"testing"
)

func TestParseResolvesAliases(t *testing.T) {
	cases := map[string]Handler{
		"zeo":        Zeo,
		" AI ":       Assistant,
		"assistant":  Assistant,
		"word_count": WordCount,
		"Poetry":     Poetry,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := Parse("nope"); !errors.Is(err, ErrUnknownHandler) {
		t.Fatalf("expected ErrUnknownHandler, got %v", err)
	}
}

func TestEveryHandlerHasPersona(t *testing.T) {
	for _, h := range All() {
		p, ok := Lookup(h)
		if !ok || p.System == "" || p.DisplayName == "" || p.Voice == "" {
			t.Fatalf("incomplete persona for %s: %+v", h, p)
		}
	}
}

func TestVoices(t *testing.T) {
	if Voice(Assistant) != VoiceAyinde || Voice(Poetry) != VoiceCallum || Voice(Zeo) != VoiceBrian {
		t.Fatalf("unexpected voice mapping")
	}
	if Voice("unknown") != VoiceBrian {
		t.Fatalf("expected default voice")
	}
}

func TestThreadID(t *testing.T) {
	if ThreadID(Zeo) != "zeo_thread" {
		t.Fatalf("unexpected thread id %q", ThreadID(Zeo))
	}
}
