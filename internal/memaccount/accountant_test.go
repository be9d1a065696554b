package memaccount

import "testing"

func TestAllocateDeallocate(t *testing.T) {
	a := New()
	a.Allocate(CategoryBulk, 100)
	a.Allocate(CategoryQuery, 50)

	if got := a.GetAllocated(); got != 150 {
		t.Fatalf("GetAllocated() = %d, want 150", got)
	}
	if got := a.GetCategory(CategoryBulk); got != 100 {
		t.Fatalf("GetCategory(Bulk) = %d, want 100", got)
	}

	a.Deallocate(CategoryBulk, 40)
	if got := a.GetAllocated(); got != 110 {
		t.Fatalf("GetAllocated() after dealloc = %d, want 110", got)
	}
}

func TestPeakNeverDecreases(t *testing.T) {
	a := New()
	a.Allocate(CategoryBulk, 1000)
	if a.Peak() != 1000 {
		t.Fatalf("Peak() = %d, want 1000", a.Peak())
	}

	a.Deallocate(CategoryBulk, 900)
	if a.GetAllocated() != 100 {
		t.Fatalf("GetAllocated() = %d, want 100", a.GetAllocated())
	}
	if a.Peak() != 1000 {
		t.Fatalf("Peak() dropped after deallocate: got %d, want 1000", a.Peak())
	}

	a.Allocate(CategoryQuery, 500)
	if a.Peak() != 1000 {
		t.Fatalf("Peak() = %d, want unchanged 1000 (total 600 < 1000)", a.Peak())
	}

	a.Allocate(CategoryQuery, 600)
	if a.Peak() != 1200 {
		t.Fatalf("Peak() = %d, want 1200", a.Peak())
	}
}

func TestZeroByteAllocateIsNoop(t *testing.T) {
	a := New()
	a.Allocate(CategoryBulk, 0)
	if a.GetAllocated() != 0 {
		t.Fatalf("GetAllocated() = %d, want 0", a.GetAllocated())
	}
}
