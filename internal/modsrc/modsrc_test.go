package modsrc

import "testing"

func TestPublishAndLookup(t *testing.T) {
	r := New()
	r.Publish("scratch.helpers", []byte("package helpers"))

	src, ok := r.Lookup("scratch.helpers")
	if !ok {
		t.Fatal("expected a hit")
	}
	if string(src) != "package helpers" {
		t.Fatalf("got %q", src)
	}

	if _, ok := r.Lookup("never.published"); ok {
		t.Fatal("expected a miss")
	}
}
