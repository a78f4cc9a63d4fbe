package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/lattice-discord/pkg/config"
)

func withOfflineConfig(t *testing.T) {
	t.Helper()
	cfg = &config.Config{}
	cfg.Agent.MaxHistory = 10
	cfg.Agent.MaxToolCalls = 2
	logger = zap.NewNop()
	askOffline = true
	t.Cleanup(func() {
		askOffline, askJSON, askThread = false, false, ""
	})
}

func TestAskOfflineEchoes(t *testing.T) {
	withOfflineConfig(t)
	var out bytes.Buffer
	if err := ask(context.Background(), &out, "ai", "hello there"); err != nil {
		t.Fatalf("ask returned error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "hello there") {
		t.Fatalf("expected echoed answer, got %q", got)
	}
	if !strings.Contains(got, "`AI Model: echo`") {
		t.Fatalf("expected footer with model, got %q", got)
	}
}

func TestAskJSON(t *testing.T) {
	withOfflineConfig(t)
	askJSON = true
	var out bytes.Buffer
	if err := ask(context.Background(), &out, "poetry", "rain"); err != nil {
		t.Fatalf("ask returned error: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if payload["handler"] != "poetry" || payload["provider"] != "dummy" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestAskRejectsUnknownHandler(t *testing.T) {
	withOfflineConfig(t)
	if err := ask(context.Background(), &bytes.Buffer{}, "weather", "hi"); err == nil {
		t.Fatalf("expected unknown handler error")
	}
}

func TestLateMessengerWithoutTarget(t *testing.T) {
	if _, err := (&lateMessenger{}).SendDirect(context.Background(), "1", "hi"); err == nil {
		t.Fatalf("expected error before the bot is attached")
	}
}

func TestBuildLimiterDefaultsToMemory(t *testing.T) {
	l, closeFn, err := buildLimiter(context.Background(), "")
	if err != nil || l == nil {
		t.Fatalf("buildLimiter: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
