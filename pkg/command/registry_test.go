package command

import (
	"reflect"
	"testing"
)

func TestRegistry_ResolveAndAliases(t *testing.T) {
	r := NewRegistry().
		AddFn("print", func(v any) (any, error) { return v, nil },
			Aliases("echo"), Help("print a value")).
		AddFn("count", func(s string) (int, error) { return len(s), nil })

	if _, ok := r.Resolve("print"); !ok {
		t.Error("Resolve misses a registered command")
	}
	if _, ok := r.Resolve("echo"); !ok {
		t.Error("Resolve misses an alias")
	}
	if _, ok := r.Resolve("Print"); ok {
		t.Error("Resolve is not case-sensitive")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Error("Resolve returns an unregistered command")
	}

	fn, ok := r.Fn("echo")
	if !ok || fn.Name() != "print" {
		t.Errorf("Fn(echo) = %v, %v, want the print command", fn, ok)
	}
	if fn.Help() != "print a value" {
		t.Errorf("Help() = %q, want %q", fn.Help(), "print a value")
	}

	want := []string{"count", "print"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistry_PanicsOnDuplicate(t *testing.T) {
	r := NewRegistry().AddFn("dup", func() error { return nil })
	defer func() {
		if recover() == nil {
			t.Error("AddFn did not panic on duplicate name")
		}
	}()
	r.AddFn("dup", func() error { return nil })
}
