package core

import (
	"errors"
	"strings"
	"time"
)

// PageSize is the fixed number of expenses shown per ledger page.
const PageSize = 10

const (
	Groceries     Category = "Groceries"
	Dining        Category = "Dining"
	Gas           Category = "Gas"
	Pharmacy      Category = "Pharmacy"
	Shopping      Category = "Shopping"
	Entertainment Category = "Entertainment"
	Utilities     Category = "Utilities"
	Other         Category = "Other"
)

// Categories lists the selectable categories in display order.
var Categories = []Category{Groceries, Dining, Gas, Pharmacy, Shopping, Entertainment, Utilities, Other}

type (
	Category string

	// Expense is a server-owned ledger entry. Category is kept exactly as the
	// backend reports it, even when it falls outside Categories.
	Expense struct {
		ID        int64     `json:"id"`
		Category  Category  `json:"category"`
		Amount    Money     `json:"amount"`
		CreatedAt Timestamp `json:"created_at"`
		UserID    int64     `json:"user_id"`
	}

	// PageResult is one page of the ledger plus the totals of the whole
	// matching set.
	PageResult struct {
		Items      []Expense
		TotalCount int
		GrandTotal Money
	}

	// FilterState selects the slice of the ledger on display. A nil Category
	// means "All".
	FilterState struct {
		Category *Category
		Page     int
	}
)

var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidPage     = errors.New("invalid page")
	ErrNegativeAmount  = errors.New("negative amount")
)

// ParseCategory maps a user supplied label onto a known category.
// Matching ignores case and surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

func (c Category) String() string {
	return string(c)
}

// Known reports whether c is one of the fixed categories.
func (c Category) Known() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// DefaultFilter is the unfiltered first page.
func DefaultFilter() FilterState {
	return FilterState{Page: 1}
}

// WithCategory returns the filter for category c, always on page 1.
func (f FilterState) WithCategory(c *Category) FilterState {
	var cp *Category
	if c != nil {
		v := *c
		cp = &v
	}
	return FilterState{Category: cp, Page: 1}
}

// WithPage returns the filter moved to page n, keeping the category.
func (f FilterState) WithPage(n int) FilterState {
	return FilterState{Category: f.Category, Page: n}
}

// Offset is the zero-based index of the first item on the page.
func (f FilterState) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * PageSize
}

// Limit is the page size sent to the backend.
func (f FilterState) Limit() int {
	return PageSize
}

// CategoryLabel returns the category name, or "All" when unfiltered.
func (f FilterState) CategoryLabel() string {
	if f.Category == nil {
		return "All"
	}
	return string(*f.Category)
}

// Equal compares category and page by value.
func (f FilterState) Equal(o FilterState) bool {
	if f.Page != o.Page {
		return false
	}
	switch {
	case f.Category == nil && o.Category == nil:
		return true
	case f.Category == nil || o.Category == nil:
		return false
	default:
		return *f.Category == *o.Category
	}
}

func (f FilterState) Validate() error {
	if f.Page < 1 {
		return ErrInvalidPage
	}
	if f.Category != nil && !f.Category.Known() {
		return ErrInvalidCategory
	}
	return nil
}

// TotalPages is ceil(TotalCount/PageSize), never less than 1.
func (p PageResult) TotalPages() int {
	return TotalPages(p.TotalCount)
}

// PageTotal sums the amounts of the items on this page only.
func (p PageResult) PageTotal() Money {
	total := Zero()
	for _, e := range p.Items {
		total = total.Add(e.Amount)
	}
	return total
}

// Empty reports whether the page holds no expenses.
func (p PageResult) Empty() bool {
	return len(p.Items) == 0
}

// TotalPages converts a result count into a page count of at least one.
func TotalPages(totalCount int) int {
	if totalCount <= 0 {
		return 1
	}
	return (totalCount + PageSize - 1) / PageSize
}

// ClampPage keeps page inside [1, max(totalPages,1)].
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Timestamp decodes the backend's created_at values, which may or may not
// carry a zone offset.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}

// Display renders the timestamp for the ledger table.
func (t Timestamp) Display() string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("Jan 2, 2006 3:04 PM")
}
