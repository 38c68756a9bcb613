package shared

const (
	// DefaultPageLimit applies when a listing omits limit.
	DefaultPageLimit = 100
	// MaxPageLimit caps any listing.
	MaxPageLimit = 1000
)

// Page is an offset window for listings.
type Page struct {
	Skip  int
	Limit int
}

// NewPage normalises skip and limit: negative skip becomes zero, a
// non-positive limit takes the default and anything above the cap is clamped.
func NewPage(skip, limit int) Page {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Skip: skip, Limit: limit}
}
