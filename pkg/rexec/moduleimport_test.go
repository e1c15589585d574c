package rexec

import "testing"

func TestFetchModuleHitAndMiss(t *testing.T) {
	client, server, cleanup := pairedContexts(t)
	defer cleanup()

	known := map[string][]byte{"scratch.helpers": []byte("package helpers")}
	server.ServeModules(func(name string) ([]byte, bool) {
		src, ok := known[name]
		return src, ok
	})

	src, found, err := client.FetchModule("scratch.helpers")
	if err != nil {
		t.Fatalf("FetchModule: %v", err)
	}
	if !found {
		t.Fatal("expected a hit")
	}
	if string(src) != "package helpers" {
		t.Fatalf("got %q", src)
	}

	_, found, err = client.FetchModule("nope")
	if err != nil {
		t.Fatalf("FetchModule: %v", err)
	}
	if found {
		t.Fatal("expected a miss")
	}
}
