// Package jobs provides pre-configured jobs for recurring source shapes.
package jobs

import (
	"regexp"
	"strings"
	"time"

	"github.com/opendatabs/etl"
)

// Destination is where a job writes and publishes its artifact.
type Destination struct {
	Output string
	Target *etl.Target
}

var numberRE = regexp.MustCompile(`^-?[\d' ]+(\.\d+)?-?$`)

// CleanNumber strips thousands separators (apostrophes, spaces) and a
// trailing minus from Swiss formatted numbers: "1'234.50-" -> "-1234.50".
// Other values are returned trimmed.
func CleanNumber(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "CHF"))
	if !numberRE.MatchString(s) {
		return s
	}

	neg := strings.HasSuffix(s, "-") || strings.HasPrefix(s, "-")
	s = strings.Trim(s, "-")
	s = strings.NewReplacer("'", "", " ", "").Replace(s)

	if neg {
		return "-" + s
	}
	return s
}

var swissDateLayouts = []string{"02.01.2006", "2.1.2006", "02.01.06"}

// ISODate converts Swiss formatted dates to "2006-01-02". ok is false for
// values that are not such a date.
func ISODate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range swissDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return s, false
}
