package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var cappedRe = regexp.MustCompile(`^(\d+)\s*\+$`)

// Display interprets a provider's human-readable vacancy string.
//
// A trailing "+" marks a capped reading: the operator only reports
// "threshold or more", so the returned count is the provider's
// minimum-guaranteed value (exactly 10 for "10+"), never an exact figure.
// A plain number is an exact count. Anything else is unknown (nil), which
// stays distinct from 0 everywhere downstream.
func Display(raw string) (available *int, capped bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}

	if m := cappedRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &n, true
		}
		return nil, false
	}

	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return &n, false
	}
	return nil, false
}
