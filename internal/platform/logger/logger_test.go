package logger

import (
	"strings"
	"testing"
)

func TestSanitizeValueRedactsSecrets(t *testing.T) {
	cases := map[string]interface{}{
		"internal_service_key": "abc",
		"access_token":         "abc",
		"Authorization":        "Bearer xyz",
		"credential_value":     "sk-live",
	}
	for key, val := range cases {
		got := sanitizeValue(normalizeKey(key), val)
		if got != "[REDACTED]" {
			t.Fatalf("%s: want=[REDACTED] got=%v", key, got)
		}
	}
}

func TestSanitizeValueHashesIdentity(t *testing.T) {
	got, ok := sanitizeValue("created_by", uint64(42)).(string)
	if !ok || !strings.HasPrefix(got, "hash:") {
		t.Fatalf("created_by: want hash got=%v", got)
	}
	again := sanitizeValue("created_by", uint64(42))
	if got != again {
		t.Fatalf("hash not stable: %v vs %v", got, again)
	}
}

func TestSanitizeValueNested(t *testing.T) {
	in := map[string]string{"knowledge_id": "7", "api_key": "k"}
	out, ok := sanitizeValue("params", in).(map[string]interface{})
	if !ok {
		t.Fatalf("want map got=%T", out)
	}
	if out["knowledge_id"] != "7" {
		t.Fatalf("knowledge_id: want=7 got=%v", out["knowledge_id"])
	}
	if out["api_key"] != "[REDACTED]" {
		t.Fatalf("api_key: want=[REDACTED] got=%v", out["api_key"])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "true")
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("odd kv: got=%v", out)
	}
}
