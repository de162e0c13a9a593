package logging

import "testing"

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	attr := MaskField("account", "0x8cb2cebb0070b231d4ba4d3b747acaebdfbbd142")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("expected redaction, got %q", attr.Value.String())
	}
}

func TestMaskFieldKeepsAllowlistedKeys(t *testing.T) {
	for _, key := range []string{"op", "asset", "ref", "firm", "error"} {
		attr := MaskField(key, "visible")
		if attr.Value.String() != "visible" {
			t.Fatalf("key %q should not be redacted", key)
		}
	}
}

func TestMaskValueLeavesEmptyAlone(t *testing.T) {
	if got := MaskValue("  "); got != "  " {
		t.Fatalf("empty value rewritten to %q", got)
	}
	if got := MaskValue("secret"); got != RedactedValue {
		t.Fatalf("non-empty value not masked: %q", got)
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(levelEnv, "warn")
	if levelFromEnv().String() != "WARN" {
		t.Fatalf("level %s", levelFromEnv())
	}
	t.Setenv(levelEnv, "")
	if levelFromEnv().String() != "INFO" {
		t.Fatalf("default level %s", levelFromEnv())
	}
}
