package llm

import (
	"testing"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	got, err := ExtractJSON(`{"name": "orders", "description": "Customer orders"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"name": "orders", "description": "Customer orders"}` {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	response := "Here are the descriptions:\n```json\n{\"tables\": []}\n```\nLet me know if you need more."
	got, err := ExtractJSON(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"tables": []}` {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestExtractJSON_ThinkTags(t *testing.T) {
	response := "<think>\nThe user wants table descriptions.\n</think>\n[{\"table\": \"orders\"}]"
	got, err := ExtractJSON(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `[{"table": "orders"}]` {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestExtractJSON_NestedBracesInStrings(t *testing.T) {
	response := `prose {"sql": "SELECT '{' FROM t", "note": "has \" escapes"} trailing`
	got, err := ExtractJSON(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"sql": "SELECT '{' FROM t", "note": "has \" escapes"}` {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestExtractJSON_ArrayBeforeObject(t *testing.T) {
	response := `[{"a": 1}, {"b": 2}]`
	got, err := ExtractJSON(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != response {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	if _, err := ExtractJSON("I could not produce descriptions for these tables."); err == nil {
		t.Errorf("expected error for prose-only response")
	}
}

func TestExtractJSON_UnbalancedBraces(t *testing.T) {
	if _, err := ExtractJSON(`{"truncated": "response`); err == nil {
		t.Errorf("expected error for truncated JSON")
	}
}

func TestParseJSONResponse(t *testing.T) {
	type tableDesc struct {
		Table       string `json:"table"`
		Description string `json:"description"`
	}

	response := "```json\n[{\"table\": \"orders\", \"description\": \"Customer orders\"}]\n```"
	got, err := ParseJSONResponse[[]tableDesc](response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Table != "orders" || got[0].Description != "Customer orders" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestParseJSONResponse_TypeMismatch(t *testing.T) {
	type tableDesc struct {
		Table string `json:"table"`
	}

	if _, err := ParseJSONResponse[[]tableDesc](`{"table": "orders"}`); err == nil {
		t.Errorf("expected unmarshal error when shape does not match")
	}
}
