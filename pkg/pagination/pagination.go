package pagination

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Params holds validated pagination parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// New clamps page and limit into their allowed ranges.
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < MinLimit {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Parse extracts and validates page/limit from query parameters
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	return New(page, limit)
}

// Range is an optional [From, To] time window taken from the query string.
type Range struct {
	From *time.Time
	To   *time.Time
}

// ParseRange reads RFC3339 `from` and `to` query parameters. Missing values stay nil.
func ParseRange(c *gin.Context, fromKey, toKey string) (Range, error) {
	var r Range
	if raw := c.Query(fromKey); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return r, err
		}
		r.From = &t
	}
	if raw := c.Query(toKey); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return r, err
		}
		r.To = &t
	}
	return r, nil
}
