package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretsAndHashesUsers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("combine", "api_key", "sk-live", "user_id", "u-1", "key", "fire|water")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want [REDACTED]", fields["api_key"])
	}
	if s, _ := fields["user_id"].(string); !strings.HasPrefix(s, "hash:") {
		t.Errorf("user_id = %v, want hashed value", fields["user_id"])
	}
	if fields["key"] != "fire|water" {
		t.Errorf("key = %v, want fire|water", fields["key"])
	}
}

func TestWithKeepsRedaction(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).With("service", "Test")

	log.Warn("auth", "authorization", "Bearer abc")

	fields := logs.All()[0].ContextMap()
	if fields["authorization"] != "[REDACTED]" {
		t.Errorf("authorization = %v, want [REDACTED]", fields["authorization"])
	}
	if fields["service"] != "Test" {
		t.Errorf("service = %v, want Test", fields["service"])
	}
}
