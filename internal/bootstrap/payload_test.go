package bootstrap

import (
	"bufio"
	"bytes"
	"testing"
)

func TestPayloadRoundTrip(t *testing.T) {
	want := Payload{ContextName: "worker-7", KeyHex: "deadbeef", ParentAddr: "10.0.0.1:9000", LogLevel: "debug"}
	encoded, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}
}

func TestFramedRoundTripAndTrailingDataPreserved(t *testing.T) {
	payload := []byte("a zlib-compressed blob, pretend")
	var buf bytes.Buffer
	if err := WriteFramed(&buf, payload); err != nil {
		t.Fatalf("WriteFramed: %v", err)
	}
	trailer := []byte("OK\n")
	buf.Write(trailer)

	r := bufio.NewReader(&buf)
	got, err := ReadFramed(r)
	if err != nil {
		t.Fatalf("ReadFramed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadFramed = %q, want %q", got, payload)
	}

	rest := make([]byte, len(trailer))
	if _, err := r.Read(rest); err != nil {
		t.Fatalf("reading trailing bytes: %v", err)
	}
	if !bytes.Equal(rest, trailer) {
		t.Fatalf("trailing bytes = %q, want %q (ReadFramed must not over-consume)", rest, trailer)
	}
}
