package record

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// TimeLayout is the timestamp format used for date-time fields and
// watermarks (yyyy-MM-dd'T'HH:mm:ss.SSS'Z', always UTC).
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatValue renders a field value to its canonical string form.
//
// Strings are NFC normalized so that visually identical values stored by
// two different systems compare equal. Floating point values go through
// decimal so 10000.0 renders as "10000" rather than "1e+04".
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return norm.NFC.String(val)
	case decimal.Decimal:
		return val.String()
	case float64:
		return decimal.NewFromFloat(val).String()
	case float32:
		return decimal.NewFromFloat32(val).String()
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return FormatTime(val)
	case fmt.Stringer:
		return norm.NFC.String(val.String())
	default:
		return norm.NFC.String(fmt.Sprint(val))
	}
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp. RFC 3339 values are accepted
// as well since outbound messages are not always padded to milliseconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err == nil {
		return t, nil
	}
	t, err2 := time.Parse(time.RFC3339Nano, s)
	if err2 != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// CanonicalDecimal normalizes a numeric string, e.g. "10000.0" -> "10000".
// Non-numeric input is returned unchanged.
func CanonicalDecimal(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.String()
}
