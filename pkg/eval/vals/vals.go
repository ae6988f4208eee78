// Package vals contains helpers for the value types of the command language.
//
// The evaluator deals in exactly four kinds of values: strings, integers,
// booleans, and nil for the absence of a value. Operations may return any of
// them; sequencing and piping always work on the string form.
package vals

import (
	"fmt"
	"strconv"
	"strings"
)

// ToString returns the string form of a value, used for sequence
// concatenation and for delivering piped input to string parameters. The
// capitalized boolean spellings are kept from the original language.
func ToString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

// ToInt coerces a value to an integer.
func ToInt(v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("cannot use `%s` as an integer", v)
		}
		return i, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot use %v as an integer", v)
	}
}

// ToBool coerces a value to a boolean. Strings follow the truthy spellings
// of the language; anything not in the set is false.
func ToBool(v any) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "true", "enable", "on":
			return true, nil
		default:
			return false, nil
		}
	default:
		return false, fmt.Errorf("cannot use %v as a boolean", v)
	}
}
