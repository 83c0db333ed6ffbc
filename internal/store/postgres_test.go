package store

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements(schema)
	if len(stmts) < 6 {
		t.Fatalf("expected the embedded schema to hold every table, got %d statements", len(stmts))
	}
	for _, s := range stmts {
		if !strings.Contains(s, "IF NOT EXISTS") {
			t.Fatalf("statement is not idempotent: %s", s)
		}
	}
}

func TestJSONColumns(t *testing.T) {
	js, err := jsonArg([]float64{0.5, 0.25})
	if err != nil || js != "[0.5,0.25]" {
		t.Fatalf("jsonArg = %q, %v", js, err)
	}
	var w []float64
	var counts []int
	if err := decodeJSON([]byte(js), &w, []byte(nil), &counts); err != nil {
		t.Fatalf("decodeJSON: %v", err)
	}
	if len(w) != 2 || counts != nil {
		t.Fatalf("unexpected decode: %v %v", w, counts)
	}
	if err := decodeJSON([]byte("{"), &w); err == nil {
		t.Fatal("expected a decode error")
	}
}
