package wire_test

import (
	"testing"

	"github.com/lanchat/lcpnode/internal/identity"
	"github.com/lanchat/lcpnode/internal/wire"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := wire.Header{
		From:    identity.Normalize("alice"),
		To:      identity.Normalize("bob"),
		Op:      wire.OpMessage,
		BodyID:  42,
		BodyLen: 5,
	}
	buf := h.Marshal()
	if len(buf) != wire.HeaderSize {
		t.Fatalf("len(buf) = %d, want %d", len(buf), wire.HeaderSize)
	}
	if wire.HeaderSize != 50 {
		t.Fatalf("HeaderSize = %d, want 50", wire.HeaderSize)
	}

	got, err := wire.UnmarshalHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: %+v != %+v", got, h)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	r := wire.Response{
		Status:    wire.StatusOK,
		Responder: identity.Normalize("bob"),
	}
	buf := r.Marshal()
	if len(buf) != wire.ResponseSize {
		t.Fatalf("len(buf) = %d, want %d", len(buf), wire.ResponseSize)
	}
	if wire.ResponseSize != 25 {
		t.Fatalf("ResponseSize = %d, want 25", wire.ResponseSize)
	}

	got, err := wire.UnmarshalResponse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Fatalf("round trip mismatch: %+v != %+v", got, r)
	}
}

func TestMessageBodyRoundTrip(t *testing.T) {
	b := wire.MessageBody{BodyID: 7, Payload: []byte("hola")}
	buf := b.Marshal()
	if buf[0] != 7 {
		t.Fatalf("buf[0] = %d, want BodyID 7", buf[0])
	}

	got, err := wire.UnmarshalMessageBody(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.BodyID != b.BodyID || string(got.Payload) != string(b.Payload) {
		t.Fatalf("round trip mismatch: %+v != %+v", got, b)
	}
}

func TestUnmarshalRejectsShortBuffers(t *testing.T) {
	if _, err := wire.UnmarshalHeader(make([]byte, wire.HeaderSize-1)); err == nil {
		t.Error("expected a framing error for a short header")
	}
	if _, err := wire.UnmarshalResponse(make([]byte, wire.ResponseSize-1)); err == nil {
		t.Error("expected a framing error for a short response")
	}
	if _, err := wire.UnmarshalMessageBody(nil); err == nil {
		t.Error("expected a framing error for an empty body")
	}
}

func TestClassifyLength(t *testing.T) {
	cases := []struct {
		n    int
		want wire.FrameKind
	}{
		{wire.ResponseSize, wire.FrameResponse},
		{wire.HeaderSize, wire.FrameHeader},
		{4096, wire.FrameUnknown},
		{0, wire.FrameUnknown},
	}
	for _, c := range cases {
		if got := wire.ClassifyLength(c.n); got != c.want {
			t.Errorf("ClassifyLength(%d) = %v, want %v", c.n, got, c.want)
		}
	}
}
