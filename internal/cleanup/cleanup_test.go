package cleanup

import (
	"errors"
	"testing"
)

func TestGuard_ReleaseOrderAndOnce(t *testing.T) {
	g := New(nil)
	var order []string
	add := func(name string, err error) {
		g.Add(name, ReleaseFunc(func() error {
			order = append(order, name)
			return err
		}))
	}

	add("first", nil)
	add("second", errors.New("boom"))
	add("third", nil)

	g.Release()
	g.Release()

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("released %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", g.Len())
	}
}

func TestGuard_PanicDoesNotStopOthers(t *testing.T) {
	g := New(nil)
	released := false
	g.Add("ok", ReleaseFunc(func() error { released = true; return nil }))
	g.Add("panics", ReleaseFunc(func() error { panic("bad") }))

	g.Release()

	if !released {
		t.Error("resource registered before a panicking one was not released")
	}
}
