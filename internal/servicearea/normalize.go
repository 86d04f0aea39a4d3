package servicearea

import (
	"slices"
	"strings"

	"github.com/mountly/mountly-backend/internal/zcta"
	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"
)

const defaultAreaName = "Service area"

// NormalizeAreaName applies NFC and collapses runs of whitespace.
func NormalizeAreaName(s string) string {
	s = strings.Join(strings.Fields(norm.NFC.String(s)), " ")
	if s == "" {
		return defaultAreaName
	}
	return s
}

// NormalizeZips returns the distinct valid 5-digit codes in sorted order.
func NormalizeZips(in []string) []string {
	out := lo.Uniq(lo.FilterMap(in, func(z string, _ int) (string, bool) {
		n := zcta.NormalizeZip(z)
		return n, len(n) == 5
	}))
	slices.Sort(out)
	return out
}
