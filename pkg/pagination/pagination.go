package pagination

import (
	"net/http"
	"strconv"
)

// Defaults for list endpoints.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds the list window requested by a client.
type Params struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DefaultParams returns the first DefaultLimit items.
func DefaultParams() Params {
	return Params{Limit: DefaultLimit}
}

// FromRequest reads limit and offset from the query string. Missing or
// out-of-range values fall back to the defaults; limit is capped at
// MaxLimit.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()

	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.Limit = min(v, MaxLimit)
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		p.Offset = v
	}
	return p
}

// Window returns the [start, end) bounds of p within a list of total items.
func (p Params) Window(total int) (start, end int) {
	start = min(p.Offset, total)
	end = min(start+p.Limit, total)
	return start, end
}
