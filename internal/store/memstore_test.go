package store

import "testing"

func TestMemStoreRoundTrip(t *testing.T) {
	m := NewMemStore()

	if err := m.Set("ac", 7); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var n int
	ok, err := m.Get("ac", &n)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}

	if err := m.Delete("ac"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := m.Get("ac", &n); ok {
		t.Fatal("expected key gone after delete")
	}
}
