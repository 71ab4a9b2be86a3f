// ABOUTME: Tests for lazy and eager computed vectors derived from one
// ABOUTME: or more source vectors, including hole propagation

package vector

import "testing"

func TestComputed1LazyDerivesOnRead(t *testing.T) {
	store := openStore(t)
	src := openInt64Vector(t, store, "src", 4)
	for i := int64(0); i < 5; i++ {
		if _, err := src.Push(i); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}
	if _, err := src.Take(2); err != nil {
		t.Fatalf("Take failed: %v", err)
	}

	c := NewComputed1(src, func(a int64) int64 { return a * a }, ModeLazy, nil)

	r, err := NewReader(store)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	got, live, err := c.Get(3, r)
	if err != nil || !live || got != 9 {
		t.Fatalf("index 3: want (9,true), got (%d,%v,%v)", got, live, err)
	}
	_, live, err = c.Get(2, r)
	if err != nil {
		t.Fatalf("Get(2) failed: %v", err)
	}
	if live {
		t.Fatal("expected a hole in the source to propagate to a lazy computed vector")
	}
}

func TestComputed1EagerAdvanceMaterializes(t *testing.T) {
	store := openStore(t)
	src := openInt64Vector(t, store, "src2", 4)
	backing := openInt64Vector(t, store, "doubled", 4)

	for i := int64(0); i < 4; i++ {
		if _, err := src.Push(i); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	c := NewComputed1(src, func(a int64) int64 { return a * 2 }, ModeEager, backing)

	r, err := NewReader(store)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if err := c.Advance(r); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if backing.Len() != 4 {
		t.Fatalf("expected backing vector to have 4 materialized elements, got %d", backing.Len())
	}
	for i := int64(0); i < 4; i++ {
		got, live, err := c.Get(uint64(i), r)
		if err != nil || !live || got != i*2 {
			t.Fatalf("index %d: want (%d,true), got (%d,%v,%v)", i, i*2, got, live, err)
		}
	}

	// Advancing again after more source pushes should only materialize
	// the new suffix, not recompute what's already backed.
	if _, err := src.Push(10); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	r2, err := NewReader(store)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r2.Close()
	if err := c.Advance(r2); err != nil {
		t.Fatalf("second Advance failed: %v", err)
	}
	if backing.Len() != 5 {
		t.Fatalf("expected backing vector to grow to 5, got %d", backing.Len())
	}
	got, live, err := c.Get(4, r2)
	if err != nil || !live || got != 20 {
		t.Fatalf("index 4: want (20,true), got (%d,%v,%v)", got, live, err)
	}
}

func TestComputed2CombinesTwoSourcesAndPropagatesEitherHole(t *testing.T) {
	store := openStore(t)
	a := openInt64Vector(t, store, "a2", 4)
	b := openInt64Vector(t, store, "b2", 4)
	for i := int64(0); i < 4; i++ {
		if _, err := a.Push(i); err != nil {
			t.Fatalf("Push a failed: %v", err)
		}
		if _, err := b.Push(i * 10); err != nil {
			t.Fatalf("Push b failed: %v", err)
		}
	}
	if _, err := b.Take(1); err != nil {
		t.Fatalf("Take failed: %v", err)
	}

	c := NewComputed2(a, b, func(x, y int64) int64 { return x + y }, ModeLazy, nil)

	r, err := NewReader(store)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	got, live, err := c.Get(2, r)
	if err != nil || !live || got != 22 {
		t.Fatalf("index 2: want (22,true), got (%d,%v,%v)", got, live, err)
	}
	_, live, err = c.Get(1, r)
	if err != nil {
		t.Fatalf("Get(1) failed: %v", err)
	}
	if live {
		t.Fatal("expected a hole in either source to make the combined index a hole")
	}
}

func TestComputed3CombinesThreeSources(t *testing.T) {
	store := openStore(t)
	a := openInt64Vector(t, store, "a3", 4)
	b := openInt64Vector(t, store, "b3", 4)
	c := openInt64Vector(t, store, "c3", 4)
	for i := int64(0); i < 3; i++ {
		if _, err := a.Push(i); err != nil {
			t.Fatalf("Push a failed: %v", err)
		}
		if _, err := b.Push(i); err != nil {
			t.Fatalf("Push b failed: %v", err)
		}
		if _, err := c.Push(i); err != nil {
			t.Fatalf("Push c failed: %v", err)
		}
	}

	sum := NewComputed3(a, b, c, func(x, y, z int64) int64 { return x + y + z }, ModeLazy, nil)

	r, err := NewReader(store)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()
	got, live, err := sum.Get(2, r)
	if err != nil || !live || got != 6 {
		t.Fatalf("index 2: want (6,true), got (%d,%v,%v)", got, live, err)
	}
}
