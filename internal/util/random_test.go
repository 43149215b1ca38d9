package util

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRandomHex(t *testing.T) {
	hex := GenerateRandomHex(16)
	if len(hex) != 16 {
		t.Errorf("expected 16 chars, got %d", len(hex))
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected character %q", c)
		}
	}
	if GenerateRandomHex(0) != "" || GenerateRandomHex(-1) != "" {
		t.Error("non-positive lengths produce empty strings")
	}
}

func TestGenerateIDs(t *testing.T) {
	sid := GenerateSessionID()
	if !strings.HasPrefix(sid, "s_") || len(sid) != 34 {
		t.Errorf("unexpected session id %q", sid)
	}
	rid := GenerateRunID()
	if !strings.HasPrefix(rid, "run_") || len(rid) != 36 {
		t.Errorf("unexpected run id %q", rid)
	}
	if GenerateSessionID() == GenerateSessionID() {
		t.Error("ids should not collide")
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !ParseBoolEnv("TEST_BOOL", false) {
		t.Error("expected true for 'yes'")
	}
	t.Setenv("TEST_BOOL", "off")
	if ParseBoolEnv("TEST_BOOL", true) {
		t.Error("expected false for 'off'")
	}
	t.Setenv("TEST_BOOL", "banana")
	if !ParseBoolEnv("TEST_BOOL", true) {
		t.Error("invalid values return the default")
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DUR", "90s")
	if got := ParseDurationEnv("TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
	t.Setenv("TEST_DUR", "soon")
	if got := ParseDurationEnv("TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("invalid values return the default, got %v", got)
	}
}
