package query

import (
	"fmt"
	"sort"
	"strings"

	"twarchive/pkg/archive"
)

// Order is the sort direction by post id
type Order int

const (
	Descending Order = iota
	Ascending
)

// ParseOrder accepts "asc" or "desc"
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc", "descending":
		return Descending, nil
	case "asc", "ascending":
		return Ascending, nil
	default:
		return Descending, fmt.Errorf("invalid order %q: use asc or desc", s)
	}
}

func (o Order) String() string {
	if o == Ascending {
		return "asc"
	}
	return "desc"
}

// DefaultPageSize is used when a filter does not set one
const DefaultPageSize = 20

// Filter selects and pages posts of a manifest
type Filter struct {
	// Search matches post text case-insensitively
	Search string
	// Has keeps only posts with at least one media of this kind
	Has *archive.MediaKind
	// Order sorts by post id
	Order Order
	// Page is 1-based
	Page     int
	PageSize int
}

// Result is one page of matching posts
type Result struct {
	Posts    []archive.Post
	Total    int
	Page     int
	Pages    int
	PageSize int
}

// Apply runs f over m. m is not modified.
func Apply(m *archive.Manifest, f Filter) Result {
	size := f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	needle := strings.ToLower(strings.TrimSpace(f.Search))
	matches := make([]archive.Post, 0, len(m.Posts))
	for _, p := range m.Posts {
		if needle != "" && !strings.Contains(strings.ToLower(p.Text), needle) {
			continue
		}
		if f.Has != nil && !p.HasKind(*f.Has) {
			continue
		}
		matches = append(matches, p)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if f.Order == Ascending {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].ID > matches[j].ID
	})

	res := Result{
		Total:    len(matches),
		Page:     page,
		PageSize: size,
		Pages:    (len(matches) + size - 1) / size,
		Posts:    []archive.Post{},
	}
	start := (page - 1) * size
	if start >= len(matches) {
		return res
	}
	end := start + size
	if end > len(matches) {
		end = len(matches)
	}
	res.Posts = matches[start:end]
	return res
}
