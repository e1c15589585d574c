package registry

import "testing"

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.Register("builtin", "echo", func(args []interface{}) (interface{}, error) {
		return args[0], nil
	})

	fn, err := r.Lookup("builtin", "echo")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	got, err := fn([]interface{}{"ping"})
	if err != nil {
		t.Fatalf("fn: %v", err)
	}
	if got != "ping" {
		t.Fatalf("got %v, want ping", got)
	}
}

func TestLookupMissReturnsErrNotFound(t *testing.T) {
	r := New()
	_, err := r.Lookup("builtin", "missing")
	if _, ok := err.(*ErrNotFound); !ok {
		t.Fatalf("err = %T, want *ErrNotFound", err)
	}

	r.Register("builtin", "echo", func(args []interface{}) (interface{}, error) { return nil, nil })
	if _, err := r.Lookup("other-module", "echo"); err == nil {
		t.Fatal("expected a miss for an unregistered module")
	}
}

func TestNamesListsRegisteredModules(t *testing.T) {
	r := New()
	r.Register("builtin", "echo", func(args []interface{}) (interface{}, error) { return nil, nil })
	r.Register("math", "add", func(args []interface{}) (interface{}, error) { return nil, nil })

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("got %v, want 2 modules", names)
	}
}
