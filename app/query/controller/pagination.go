package controller

import (
	"math"
	"net/http"
	"strconv"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// parseLimit reads the limit query parameter, clamped to maxLimit.
func parseLimit(r *http.Request) (int, error) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, errInvalidLimit
		}
		limit = int(math.Min(float64(n), maxLimit))
	}
	return limit, nil
}

var errInvalidLimit = &parseError{msg: "invalid limit"}

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
