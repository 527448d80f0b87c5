// Package etl implements the configurable mapping engine that turns raw
// feed items into rendered output documents: extraction by document path,
// sequential value transformation, field validation, and output rendering,
// all driven by a stored mapping profile.
package etl

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/seamline/ingest/errors"
)

// Truthy reports whether a value is considered set by the mapping engine.
// Follows loose-typing rules the profile corpus was written against:
// nil, false, zero numbers, "", "0", and empty collections are all falsy.
func Truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "0"
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

// Stringify renders a scalar for template output. Non-scalars are
// JSON-encoded so they survive round-tripping through string templates.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// looseEqual compares two values by their scalar string forms, so that
// "5" == 5 and "on" == "on" the way profile authors expect.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Stringify(a) == Stringify(b)
}

// delimiterChars are the delimiters accepted in the profile corpus's
// delimited pattern form, e.g. "/foo.+/i" or "#^bar#m".
var delimiterChars = map[byte]byte{'/': '/', '#': '#', '~': '~', '!': '!', '%': '%'}

// CompilePattern compiles a profile-supplied regular expression. Patterns
// may use delimited form with trailing i/m/s modifiers; undelimited
// patterns compile as-is.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) >= 2 {
		if closer, ok := delimiterChars[pattern[0]]; ok {
			if end := strings.LastIndexByte(pattern[1:], closer); end >= 0 {
				body := pattern[1 : 1+end]
				mods := pattern[2+end:]

				var flags string
				for _, m := range mods {
					switch m {
					case 'i', 'm', 's':
						flags += string(m)
					case 'u', 'x', 'U':
						// unicode mode is the default; ignore
					default:
						return nil, errors.Newf("unsupported regex modifier %q in pattern %q", string(m), pattern)
					}
				}

				if flags != "" {
					body = "(?" + flags + ")" + body
				}
				re, err := regexp.Compile(body)
				if err != nil {
					return nil, errors.Wrapf(err, "compile pattern %q", pattern)
				}
				return re, nil
			}
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "compile pattern %q", pattern)
	}
	return re, nil
}

// argString coerces a transform/validation argument to string.
func argString(v interface{}) string {
	return Stringify(v)
}

// argInt coerces a JSON-decoded argument to int. JSON numbers arrive as
// float64; strings holding digits are accepted too.
func argInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
