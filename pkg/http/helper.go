package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "checkpost/pkg/errors"
)

const DateLayout = "2006-01-02"

// ExtractLimitOffset reads the raw limit and offset query parameters. Zero
// means not given; callers apply their own ceilings.
func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	limit, err := QueryInt(r, "limit", 0)
	if err != nil {
		return 0, 0, err
	}
	offset, err := QueryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if limit < 0 {
		return 0, 0, apperrors.InvalidInput("limit cannot be negative")
	}
	return limit, max(0, int64(offset)), nil
}

func QueryInt(r *http.Request, key string, fallback int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperrors.InvalidInput("invalid " + key + " parameter: " + s)
	}
	return v, nil
}

// QueryDate parses a YYYY-MM-DD query parameter. A missing parameter yields
// the zero time.
func QueryDate(r *http.Request, key string) (time.Time, error) {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("invalid " + key + " parameter, expected YYYY-MM-DD: " + s)
	}
	return t, nil
}

func QueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
