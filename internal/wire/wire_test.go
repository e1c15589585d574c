package wire

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTripPrimitivesAndContainers(t *testing.T) {
	m := New(CodecNone)

	cases := []interface{}{
		42,
		"hello",
		[]interface{}{1, "two", 3.0},
		map[string]interface{}{"a": int64(1), "b": "two"},
	}

	for _, v := range cases {
		body, err := m.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v, err)
		}
		got, err := m.Unmarshal(body)
		if err != nil {
			t.Fatalf("Unmarshal(%v): %v", v, err)
		}
		if diff := cmp.Diff(v, got); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

type widget struct {
	Name  string
	Count int
}

func TestAllowListGatesUserTypes(t *testing.T) {
	sender := New(CodecNone)
	sender.AllowType(widget{})

	body, err := sender.Marshal(widget{Name: "bolt", Count: 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	allowed := New(CodecNone)
	allowed.AllowType(widget{})
	got, err := allowed.Unmarshal(body)
	if err != nil {
		t.Fatalf("Unmarshal on allowed receiver: %v", err)
	}
	if got.(widget) != (widget{Name: "bolt", Count: 3}) {
		t.Fatalf("got %+v", got)
	}

	disallowed := New(CodecNone)
	if _, err := disallowed.Unmarshal(body); err == nil || !strings.Contains(err.Error(), "not in stream's allow-list") {
		t.Fatalf("expected ErrDisallowedType, got %v", err)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	big := strings.Repeat("x", CompressionThreshold*4)
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecLZ4} {
		m := New(codec)
		body, err := m.Marshal(big)
		if err != nil {
			t.Fatalf("codec %d: Marshal: %v", codec, err)
		}
		got, err := m.Unmarshal(body)
		if err != nil {
			t.Fatalf("codec %d: Unmarshal: %v", codec, err)
		}
		if got.(string) != big {
			t.Fatalf("codec %d: round trip mismatch", codec)
		}
	}
}

type fakeCallable struct {
	streamID uint32
	callSite uint64
}

func (f fakeCallable) FuncRefTag() (uint32, uint64) { return f.streamID, f.callSite }

func TestCallableBecomesFuncRef(t *testing.T) {
	m := New(CodecNone)
	body, err := m.Marshal(fakeCallable{streamID: 7, callSite: 99})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := m.Unmarshal(body)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	ref, ok := got.(FuncRef)
	if !ok {
		t.Fatalf("got %T, want FuncRef", got)
	}
	if ref.StreamID != 7 || ref.CallSite != 99 {
		t.Fatalf("got %+v", ref)
	}
}
