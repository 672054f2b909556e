package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDProviderIssuesVersion7(t *testing.T) {
	provider := NewUUIDProvider()
	first, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct identifiers")
	}
	parsed, err := uuid.Parse(first)
	if err != nil {
		t.Fatalf("expected valid uuid: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestSequenceExhausts(t *testing.T) {
	provider := Sequence("a")
	if value, err := provider.NewID(); err != nil || value != "a" {
		t.Fatalf("unexpected first value %q err %v", value, err)
	}
	if _, err := provider.NewID(); err == nil {
		t.Fatalf("expected exhaustion error")
	}
}
