package handlers

import (
	"encoding/json"
	"testing"
)

func TestParsePayload(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		payload, err := parsePayload(json.RawMessage(`{"style":"casual"}`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if v, _ := payload.StringField("style"); v != "casual" {
			t.Fatalf("expected style field, got %v", payload)
		}
	})

	t.Run("object in a string", func(t *testing.T) {
		payload, err := parsePayload(json.RawMessage(`"{\"style\":\"casual\"}"`))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if v, _ := payload.StringField("style"); v != "casual" {
			t.Fatalf("expected style field, got %v", payload)
		}
	})

	t.Run("empty variants", func(t *testing.T) {
		for _, raw := range []string{"", "null", `""`} {
			payload, err := parsePayload(json.RawMessage(raw))
			if err != nil {
				t.Fatalf("parse %q: %v", raw, err)
			}
			if len(payload) != 0 {
				t.Fatalf("expected empty payload for %q, got %v", raw, payload)
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := parsePayload(json.RawMessage(`"not json at all"`)); err == nil {
			t.Fatalf("expected error for invalid payload")
		}
	})
}
