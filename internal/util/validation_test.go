package util

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestParseUUIDv4(t *testing.T) {
	valid := uuid.New().String()
	if _, err := ParseUUIDv4(valid); err != nil {
		t.Fatalf("ParseUUIDv4(%q): %v", valid, err)
	}
	if _, err := ParseUUIDv4("  " + valid + "  "); err != nil {
		t.Fatalf("surrounding whitespace should be tolerated: %v", err)
	}

	for _, value := range []string{"", "not-a-uuid", "00000000-0000-0000-0000-000000000000"} {
		if _, err := ParseUUIDv4(value); !errors.Is(err, ErrInvalidUUID) {
			t.Fatalf("ParseUUIDv4(%q) = %v, want ErrInvalidUUID", value, err)
		}
	}
}

func TestParseRFC3339(t *testing.T) {
	ts, err := ParseRFC3339("2026-08-28T10:00:00.5Z")
	if err != nil {
		t.Fatalf("ParseRFC3339: %v", err)
	}
	if ts.IsZero() {
		t.Fatal("parsed timestamp is zero")
	}

	for _, value := range []string{"", "yesterday", "2026-08-28"} {
		if _, err := ParseRFC3339(value); !errors.Is(err, ErrInvalidTimestamp) {
			t.Fatalf("ParseRFC3339(%q) = %v, want ErrInvalidTimestamp", value, err)
		}
	}
}

func TestValidateMSISDN(t *testing.T) {
	for _, value := range []string{"0821234567", "+27821234567", " 0821234567 "} {
		if _, err := ValidateMSISDN(value); err != nil {
			t.Fatalf("ValidateMSISDN(%q): %v", value, err)
		}
	}
	for _, value := range []string{"", "082-123", "abc", "+", "12345"} {
		if _, err := ValidateMSISDN(value); !errors.Is(err, ErrInvalidMSISDN) {
			t.Fatalf("ValidateMSISDN(%q) = %v, want ErrInvalidMSISDN", value, err)
		}
	}
}
