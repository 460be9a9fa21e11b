package logger

import (
	"errors"
	"testing"
)

func TestFieldsPairs(t *testing.T) {
	f := fields([]any{"user_id", "42", "error", errors.New("boom"), 7, true})
	if f["user_id"] != "42" {
		t.Fatalf("expected user_id=42, got %v", f["user_id"])
	}
	if f["error"] != "boom" {
		t.Fatalf("errors should be flattened to strings, got %v", f["error"])
	}
	if f["7"] != true {
		t.Fatalf("non-string keys should be stringified, got %v", f)
	}
}

func TestFieldsOddArgs(t *testing.T) {
	f := fields([]any{"dangling"})
	if f["!BADKEY"] != "dangling" {
		t.Fatalf("expected dangling key under !BADKEY, got %v", f)
	}
}
