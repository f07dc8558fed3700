package chat

import (
	"errors"
	"testing"
)

func TestExtractJSONStrict(t *testing.T) {
	obj, err := ExtractJSON(`{"suggestions": {"camelCase": []}}`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, ok := obj["suggestions"]; !ok {
		t.Fatalf("missing suggestions key: %v", obj)
	}
}

func TestExtractJSONWrappedInProse(t *testing.T) {
	raw := "Here is the result you asked for:\n```json\n{\"mandarin_title\": \"外公\", \"notes\": \"maternal\"}\n```\nHope that helps!"
	obj, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if obj["mandarin_title"] != "外公" {
		t.Fatalf("mandarin_title = %v", obj["mandarin_title"])
	}
}

func TestExtractJSONNestedBraces(t *testing.T) {
	raw := `The model says: {"outer": {"inner": 1}, "n": 2} end`
	obj, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if obj["n"].(float64) != 2 {
		t.Fatalf("n = %v", obj["n"])
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	_, err := ExtractJSON("sorry, I cannot produce that")
	var parse *ParseError
	if !errors.As(err, &parse) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestExtractJSONMalformedObject(t *testing.T) {
	_, err := ExtractJSON(`prefix {"broken": } suffix`)
	var parse *ParseError
	if !errors.As(err, &parse) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}
