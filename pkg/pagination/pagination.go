package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 1000
	MaxLimit     = 1000

	// TotalCountHeader carries the unpaged match count next to a bare array body.
	TotalCountHeader = "X-Total-Count"
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads skip/limit from the query string. offset is accepted as
// an alias of skip. Out-of-range values fall back to the defaults.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("skip"), c.QueryParam("offset"), c.QueryParam("limit"))
}

func Parse(skip, offset, limit string) Params {
	l, err := strconv.Atoi(limit)
	if err != nil || l <= 0 {
		l = DefaultLimit
	}
	if l > MaxLimit {
		l = MaxLimit
	}

	o, err := strconv.Atoi(skip)
	if err != nil {
		o, _ = strconv.Atoi(offset)
	}
	if o < 0 {
		o = 0
	}
	return Params{Limit: l, Offset: o}
}

// SetTotal exposes the unpaged total so the body can stay a plain array.
func SetTotal(c echo.Context, total int) {
	c.Response().Header().Set(TotalCountHeader, strconv.Itoa(total))
}
