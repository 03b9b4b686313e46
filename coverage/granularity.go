package coverage

import (
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/opendatabs/etl/portal"
)

// Granularity is the temporal resolution of a field.
type Granularity int

// Granularities, coarsest first.
const (
	None Granularity = iota
	Year
	Month
	Day
	Datetime
)

func (g Granularity) String() string {
	switch g {
	case Year:
		return "year"
	case Month:
		return "month"
	case Day:
		return "day"
	case Datetime:
		return "datetime"
	default:
		return "none"
	}
}

// Of returns the granularity of a field, None for non-temporal fields.
func Of(f portal.Field) Granularity {
	switch f.Type {
	case "datetime":
		return Datetime
	case "date":
		switch f.Annotations.TimeseriePrecision {
		case "year":
			return Year
		case "month":
			return Month
		default:
			return Day
		}
	default:
		return None
	}
}

// Classify picks the finest granularity present among fields and returns it
// along with the names of the fields of that granularity.
func Classify(fields []portal.Field) (Granularity, []string) {
	best := None
	var names []string
	for _, f := range fields {
		g := Of(f)
		switch {
		case g == None || g < best:
		case g > best:
			best = g
			names = []string{f.Name}
		default:
			names = append(names, f.Name)
		}
	}
	return best, names
}

const dateLayout = "2006-01-02"

// Canonicalize turns a field value into the calendar date it bounds. Month
// and year values round to the first day of the period for a start bound and
// to its last day for an end bound; datetimes keep the date in their own
// offset.
func Canonicalize(g Granularity, value string, end bool) (time.Time, error) {
	value = strings.TrimSpace(value)

	switch g {
	case Datetime:
		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return date(t.Year(), t.Month(), t.Day()), nil
		}
		return parsePrefix(value, dateLayout)
	case Day:
		return parsePrefix(value, dateLayout)
	case Month:
		t, err := parsePrefix(value, "2006-01")
		if err != nil {
			return time.Time{}, err
		}
		if end {
			return date(t.Year(), t.Month()+1, 0), nil
		}
		return t, nil
	case Year:
		t, err := parsePrefix(value, "2006")
		if err != nil {
			return time.Time{}, err
		}
		if end {
			return date(t.Year(), time.December, 31), nil
		}
		return t, nil
	default:
		return time.Time{}, xerrors.Errorf("cannot canonicalize %q with granularity %s", value, g)
	}
}

func parsePrefix(value, layout string) (time.Time, error) {
	if len(value) < len(layout) {
		return time.Time{}, xerrors.Errorf("failed to parse %q as %s", value, layout)
	}
	t, err := time.Parse(layout, value[:len(layout)])
	if err != nil {
		return time.Time{}, xerrors.Errorf("failed to parse %q: %w", value, err)
	}
	return t, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
