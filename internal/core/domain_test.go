package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in  string
		out Category
		ok  bool
	}{
		{"Dining", Dining, true},
		{" dining ", Dining, true},
		{"UTILITIES", Utilities, true},
		{"Other", Other, true},
		{"", "", false},
		{"Category not found", "", false},
	}
	for _, tc := range cases {
		got, err := ParseCategory(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int
		pages int
	}{
		{0, 1},
		{1, 1},
		{10, 1},
		{11, 2},
		{23, 3},
		{30, 3},
		{-4, 1},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total); got != tc.pages {
			t.Fatalf("TotalPages(%d) = %d, want %d", tc.total, got, tc.pages)
		}
	}
}

func TestClampPage(t *testing.T) {
	if got := ClampPage(0, 3); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := ClampPage(5, 3); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := ClampPage(2, 0); got != 1 {
		t.Fatalf("expected 1 when there are no pages, got %d", got)
	}
}

func TestFilterWithCategoryResetsPage(t *testing.T) {
	dining := Dining
	f := DefaultFilter().WithPage(3)
	f = f.WithCategory(&dining)
	if f.Page != 1 {
		t.Fatalf("expected page reset to 1, got %d", f.Page)
	}
	if f.Category == nil || *f.Category != Dining {
		t.Fatalf("expected Dining, got %v", f.Category)
	}
	// The filter holds its own copy of the category.
	dining = Gas
	if *f.Category != Dining {
		t.Fatalf("filter category aliased caller variable")
	}
	if f.Offset() != 0 {
		t.Fatalf("expected offset 0, got %d", f.Offset())
	}
	if got := f.WithPage(3).Offset(); got != 20 {
		t.Fatalf("expected offset 20, got %d", got)
	}
	if got := f.WithCategory(nil).CategoryLabel(); got != "All" {
		t.Fatalf("expected All, got %q", got)
	}
}

func TestFilterEqual(t *testing.T) {
	a, b := Dining, Dining
	gas := Gas
	cases := []struct {
		x, y FilterState
		eq   bool
	}{
		{DefaultFilter(), DefaultFilter(), true},
		{FilterState{Category: &a, Page: 1}, FilterState{Category: &b, Page: 1}, true},
		{FilterState{Category: &a, Page: 1}, FilterState{Category: &gas, Page: 1}, false},
		{FilterState{Category: &a, Page: 1}, DefaultFilter(), false},
		{DefaultFilter(), DefaultFilter().WithPage(2), false},
	}
	for i, tc := range cases {
		if got := tc.x.Equal(tc.y); got != tc.eq {
			t.Fatalf("case %d: Equal = %v, want %v", i, got, tc.eq)
		}
	}
}

func TestFilterValidate(t *testing.T) {
	bogus := Category("Travel")
	if err := DefaultFilter().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (FilterState{Page: 0}).Validate(); err != ErrInvalidPage {
		t.Fatalf("expected ErrInvalidPage, got %v", err)
	}
	if err := (FilterState{Category: &bogus, Page: 1}).Validate(); err != ErrInvalidCategory {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestPageResultTotals(t *testing.T) {
	p := PageResult{
		Items: []Expense{
			{ID: 1, Category: Dining, Amount: NewMoney(10.10)},
			{ID: 2, Category: Gas, Amount: NewMoney(0.20)},
		},
		TotalCount: 23,
		GrandTotal: NewMoney(99.5),
	}
	if got := p.PageTotal().Format(); got != "$10.30" {
		t.Fatalf("page total = %s", got)
	}
	if p.TotalPages() != 3 {
		t.Fatalf("expected 3 pages, got %d", p.TotalPages())
	}
	if (PageResult{}).TotalPages() != 1 || !(PageResult{}).Empty() {
		t.Fatalf("empty result should have one page")
	}
}

func TestExpenseDecode(t *testing.T) {
	body := `{"id": 7, "category": "Category not found", "amount": 23.5,
		"created_at": "2025-03-04T10:11:12.123456", "user_id": 3}`
	var e Expense
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.ID != 7 || e.UserID != 3 {
		t.Fatalf("unexpected ids: %+v", e)
	}
	if e.Category.Known() {
		t.Fatalf("unknown category reported as known")
	}
	if e.Amount.Format() != "$23.50" {
		t.Fatalf("amount = %s", e.Amount.Format())
	}
	want := time.Date(2025, 3, 4, 10, 11, 12, 123456000, time.UTC)
	if !e.CreatedAt.Equal(want) {
		t.Fatalf("created_at = %v, want %v", e.CreatedAt.Time, want)
	}
}

func TestTimestampDecodeWithZone(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2025-03-04T10:11:12+02:00"`), &ts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ts.UTC().Hour() != 8 {
		t.Fatalf("expected 08 UTC, got %v", ts.UTC())
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Fatalf("expected error for garbage timestamp")
	}
}
