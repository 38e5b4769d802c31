package api

import (
	"testing"

	"github.com/lanchat/lcpnode/internal/identity"
)

func TestParseUserIDAcceptsDisplayForm(t *testing.T) {
	id := identity.Normalize("alice")
	got, err := parseUserID(id.Display())
	if err != nil {
		t.Fatalf("parseUserID(display): %v", err)
	}
	if got != id {
		t.Fatalf("got %v, want %v", got, id)
	}
}

func TestParseUserIDAcceptsGlobalLiteral(t *testing.T) {
	got, err := parseUserID("*global*")
	if err != nil {
		t.Fatalf("parseUserID(global): %v", err)
	}
	if !got.IsBroadcast() {
		t.Fatalf("got %v, want broadcast", got)
	}
}

func TestParseUserIDFallsBackToRawLiteral(t *testing.T) {
	// Not a valid Display form, so it falls through to the raw-literal
	// path, which accepts it as a normalized id. That path rejects only
	// strings whose strconv.Quote form is not valid JSON (control
	// characters or invalid UTF-8).
	got, err := parseUserID("bob")
	if err != nil {
		t.Fatalf("parseUserID(bob): %v", err)
	}
	if got != identity.Normalize("bob") {
		t.Fatalf("got %v, want Normalize(bob)", got)
	}
}
