package pagination

import "testing"

func intRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{25, 1, 25},
		{3, 5, 1},
	}
	for _, tt := range tests {
		p := NewWithSize(intRange(tt.n), tt.size)
		if got := p.TotalPages(); got != tt.want {
			t.Errorf("TotalPages(n=%d, size=%d) = %d, want %d", tt.n, tt.size, got, tt.want)
		}
	}
}

func TestPageSliceBounds(t *testing.T) {
	// For every valid page: len(items) == min(S, N - (P-1)*S).
	for _, n := range []int{0, 1, 9, 10, 25, 31} {
		p := New(intRange(n))
		for page := 1; page <= p.TotalPages(); page++ {
			p.GoToPage(page)
			want := n - (page-1)*p.PageSize()
			if want > p.PageSize() {
				want = p.PageSize()
			}
			if want < 0 {
				want = 0
			}
			if got := len(p.Items()); got != want {
				t.Errorf("n=%d page=%d: len(Items()) = %d, want %d", n, page, got, want)
			}
		}
	}
}

func TestGoToPageOutOfRangeIsNoOp(t *testing.T) {
	p := New(intRange(25))
	p.GoToPage(2)

	for _, bad := range []int{0, -1, 4, 100} {
		p.GoToPage(bad)
		if p.Page() != 2 {
			t.Errorf("GoToPage(%d) moved to page %d, want unchanged 2", bad, p.Page())
		}
	}
}

func TestNavigationAcross25Items(t *testing.T) {
	p := New(intRange(25))

	if p.TotalPages() != 3 {
		t.Fatalf("TotalPages() = %d, want 3", p.TotalPages())
	}

	p.GoToPage(2)
	items := p.Items()
	if len(items) != 10 || items[0] != 11 || items[9] != 20 {
		t.Errorf("page 2 = %v, want items 11..20", items)
	}
	if !p.HasNext() || !p.HasPrev() {
		t.Errorf("HasNext=%v HasPrev=%v, want true/true", p.HasNext(), p.HasPrev())
	}

	p.GoToPage(4)
	if p.Page() != 2 {
		t.Errorf("GoToPage(4): page = %d, want 2 (no-op)", p.Page())
	}
}

func TestEmptyCollection(t *testing.T) {
	p := New([]int{})
	if p.TotalPages() != 1 {
		t.Errorf("TotalPages() = %d, want 1", p.TotalPages())
	}
	if len(p.Items()) != 0 {
		t.Errorf("Items() = %v, want empty", p.Items())
	}
	if p.HasNext() || p.HasPrev() {
		t.Error("empty collection must have no next/prev page")
	}
}

func TestNextPrevGating(t *testing.T) {
	p := New(intRange(15))

	p.Prev()
	if p.Page() != 1 {
		t.Errorf("Prev() on first page moved to %d", p.Page())
	}
	p.Next()
	if p.Page() != 2 {
		t.Errorf("Next() = page %d, want 2", p.Page())
	}
	p.Next()
	if p.Page() != 2 {
		t.Errorf("Next() on last page moved to %d", p.Page())
	}
	p.Prev()
	if p.Page() != 1 {
		t.Errorf("Prev() = page %d, want 1", p.Page())
	}
}

func TestSetPageSizeReclampsCurrentPage(t *testing.T) {
	p := New(intRange(25))
	p.GoToPage(3)

	p.SetPageSize(25)
	if p.Page() != 1 {
		t.Errorf("page after SetPageSize(25) = %d, want 1", p.Page())
	}

	p.SetPageSize(0)
	if p.PageSize() != 25 {
		t.Errorf("SetPageSize(0) changed size to %d", p.PageSize())
	}
}

func TestSetItemsReclamps(t *testing.T) {
	p := New(intRange(25))
	p.GoToPage(3)

	p.SetItems(intRange(5))
	if p.Page() != 1 {
		t.Errorf("page after shrinking source = %d, want 1", p.Page())
	}
	if p.TotalPages() != 1 {
		t.Errorf("TotalPages() = %d, want 1", p.TotalPages())
	}
}

func TestViewSnapshot(t *testing.T) {
	p := NewWithSize(intRange(7), 3)
	p.GoToPage(3)

	v := p.View()
	if v.Page != 3 || v.PageSize != 3 || v.TotalItems != 7 || v.TotalPages != 3 {
		t.Errorf("View() = %+v", v)
	}
	if v.HasNext || !v.HasPrev {
		t.Errorf("View() flags = next:%v prev:%v, want false/true", v.HasNext, v.HasPrev)
	}
	if len(v.Items) != 1 || v.Items[0] != 7 {
		t.Errorf("View().Items = %v, want [7]", v.Items)
	}
}
