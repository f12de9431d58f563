package application

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatValue renders a pin value the way the dashboard expects it on the
// wire: booleans become "1"/"0", floats are printed in fixed notation with
// trailing zeros and the trailing decimal point trimmed, everything else
// goes through the generic string conversion.
func FormatValue(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return formatFloat(v)
	case float32:
		return formatFloat(float64(v))
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		return "0"
	}
	return s
}

// ParsePin parses a virtual pin identifier such as "V5" into its number.
// A bare numeric string is accepted as well.
func ParsePin(pin string) (int, error) {
	if pin == "" {
		return 0, fmt.Errorf("invalid pin: empty")
	}

	s := pin
	if s[0] == 'V' || s[0] == 'v' {
		s = s[1:]
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid pin: %q", pin)
	}
	return n, nil
}

func pinName(pin int) string {
	return "V" + strconv.Itoa(pin)
}
