package etl

import (
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NewStandardLibrary builds the general-purpose transform library.
func NewStandardLibrary() Library {
	lib := &methodLibrary{name: "standard"}
	lib.methods = map[string]methodFunc{
		"date":                stdDate,
		"leftUntil":           stdLeftUntil,
		"value":               stdValue,
		"defaultValue":        stdDefaultValue,
		"stripHtmlTags":       stdStripHTMLTags,
		"cleanHtmlEntities":   stdCleanHTMLEntities,
		"crossReference":      stdCrossReference,
		"replaceIn":           stdReplaceIn,
		"highAsciiHtmlEncode": stdHighASCIIHTMLEncode,
		"findWithRegex":       stdFindWithRegex,
		"findFirst":           stdFindFirst,
		"findLast":            stdFindLast,
		"stripNonPrintable":   stdStripNonPrintable,
		"regexReplace":        stdRegexReplace,
	}
	return lib
}

// dateLayouts are tried in order when parsing freeform source dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
	"20060102",
}

var dateTokens = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"HH", "15",
	"II", "04",
	"SS", "05",
)

// stdDate parses a freeform date and reformats it. The output format uses
// the profile corpus's tokens (MM/DD/YYYY by default). Unparseable input
// passes through unchanged.
func stdDate(args []interface{}) (interface{}, error) {
	value := arg(args, 0)
	format := "MM/DD/YYYY"
	if f := argString(arg(args, 1)); f != "" {
		format = f
	}

	text := strings.TrimSpace(argString(value))
	if text == "" {
		return value, nil
	}

	parsed, ok := parseDate(text)
	if !ok {
		return value, nil
	}

	return parsed.Format(dateTokens.Replace(format)), nil
}

func parseDate(text string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed, true
		}
	}

	// Unix timestamps arrive as bare digits
	if secs, err := strconv.ParseInt(text, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}

	return time.Time{}, false
}

// stdLeftUntil truncates the haystack at the first occurrence of the
// needle. The haystack passes through unchanged when falsy or when the
// needle is absent.
func stdLeftUntil(args []interface{}) (interface{}, error) {
	haystack := arg(args, 0)
	needle := argString(arg(args, 1))

	text := argString(haystack)
	if !Truthy(haystack) {
		return haystack, nil
	}

	idx := strings.Index(text, needle)
	if idx < 0 {
		return haystack, nil
	}
	return text[:idx], nil
}

func stdValue(args []interface{}) (interface{}, error) {
	return arg(args, 0), nil
}

func stdDefaultValue(args []interface{}) (interface{}, error) {
	value := arg(args, 0)
	if Truthy(value) {
		return value, nil
	}
	return arg(args, 1), nil
}

var blockClosePattern = regexp.MustCompile(`(?i)</p>|</div>|</li>|<br>|</br>`)
var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// stdStripHTMLTags converts block-closing tags to newlines before stripping
// the remaining markup, preserving paragraph structure in plain text.
func stdStripHTMLTags(args []interface{}) (interface{}, error) {
	text := argString(arg(args, 0))
	text = blockClosePattern.ReplaceAllString(text, "\n")
	return strings.TrimSpace(tagPattern.ReplaceAllString(text, "")), nil
}

func stdCleanHTMLEntities(args []interface{}) (interface{}, error) {
	return html.UnescapeString(argString(arg(args, 0))), nil
}

// tablePair is one entry of a lookup table argument.
type tablePair struct {
	name  string
	value interface{}
}

// normalizeTable accepts both table forms the profile corpus uses: an
// object {name: value, ...} and a pair list [[name, value], ...]. The pair
// list preserves configured order; object keys apply in sorted order since
// JSON object order does not survive decoding.
func normalizeTable(table interface{}) []tablePair {
	switch t := table.(type) {
	case map[string]interface{}:
		names := make([]string, 0, len(t))
		for name := range t {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]tablePair, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, tablePair{name: name, value: t[name]})
		}
		return pairs
	case []interface{}:
		pairs := make([]tablePair, 0, len(t))
		for _, entry := range t {
			pair, ok := entry.([]interface{})
			if !ok || len(pair) < 2 {
				continue
			}
			pairs = append(pairs, tablePair{name: argString(pair[0]), value: pair[1]})
		}
		return pairs
	default:
		return nil
	}
}

// stdCrossReference maps a value through a lookup table. The input is
// trimmed before matching; a "*" entry catches everything unmatched; with
// no match at all the trimmed input passes through.
func stdCrossReference(args []interface{}) (interface{}, error) {
	value := strings.TrimSpace(argString(arg(args, 0)))
	pairs := normalizeTable(arg(args, 1))

	var fallback interface{}
	hasFallback := false
	for _, pair := range pairs {
		if pair.name == value {
			return pair.value, nil
		}
		if pair.name == "*" {
			fallback = pair.value
			hasFallback = true
		}
	}

	if hasFallback {
		return fallback, nil
	}
	return value, nil
}

// stdReplaceIn applies every table entry as a substring replacement, in
// table order. Later entries see the output of earlier ones.
func stdReplaceIn(args []interface{}) (interface{}, error) {
	text := argString(arg(args, 0))
	for _, pair := range normalizeTable(arg(args, 1)) {
		text = strings.ReplaceAll(text, pair.name, argString(pair.value))
	}
	return text, nil
}

// highASCIIEntities is the fixed translation table for characters partner
// systems cannot ingest raw.
var highASCIIEntities = strings.NewReplacer(
	"•", "&bull;",
	"·", "&bull;",
	"“", "&ldquo;",
	"”", "&rdquo;",
	"‘", "&lsquo;",
	"’", "&rsquo;",
	"®", "&reg;",
	"©", "&copy;",
	"™", "&trade;",
	"€", "&euro;",
	"¥", "&yen;",
	"¢", "&cent;",
	"–", "&ndash;",
	"—", "&mdash;",
	"¶", "&para;",
	"§", "&sect;",
	"°", "&deg;",
	"½", "&frac12;",
	"¼", "&frac14;",
	"¾", "&frac34;",
	"⋮", "&vellip;",
	"…", "&hellip;",
	"†", "&dagger;",
	"‡", "&Dagger;",
	"¹", "&sup1;",
	"²", "&sup2;",
	"³", "&sup3;",
)

func stdHighASCIIHTMLEncode(args []interface{}) (interface{}, error) {
	return highASCIIEntities.Replace(argString(arg(args, 0))), nil
}

// stdFindWithRegex returns the first match of pattern in value. An integer
// third argument selects a capture group instead of the whole match; the
// fourth argument is the result when nothing matches (default "").
func stdFindWithRegex(args []interface{}) (interface{}, error) {
	value := argString(arg(args, 0))
	pattern := argString(arg(args, 1))

	fallback := interface{}("")
	if len(args) >= 4 {
		fallback = args[3]
	}

	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	matches := re.FindStringSubmatch(value)
	if matches == nil {
		return fallback, nil
	}

	if group, ok := argInt(arg(args, 2)); ok && group > 0 {
		if group >= len(matches) {
			return fallback, nil
		}
		return matches[group], nil
	}

	return matches[0], nil
}

// stdFindFirst returns the first candidate substring found in value, or nil
// when the candidate list is missing or nothing matches.
func stdFindFirst(args []interface{}) (interface{}, error) {
	value := argString(arg(args, 0))
	candidates, ok := arg(args, 1).([]interface{})
	if !ok {
		return nil, nil
	}

	for _, candidate := range candidates {
		needle := argString(candidate)
		if needle != "" && strings.Contains(value, needle) {
			return needle, nil
		}
	}
	return nil, nil
}

// stdFindLast is findFirst over the reversed candidate list.
func stdFindLast(args []interface{}) (interface{}, error) {
	candidates, ok := arg(args, 1).([]interface{})
	if !ok {
		return nil, nil
	}

	reversed := make([]interface{}, len(candidates))
	for i, candidate := range candidates {
		reversed[len(candidates)-1-i] = candidate
	}

	return stdFindFirst([]interface{}{arg(args, 0), reversed})
}

// stdStripNonPrintable repairs the input to valid NFC UTF-8 and removes C0
// and C1 control characters.
func stdStripNonPrintable(args []interface{}) (interface{}, error) {
	text := argString(arg(args, 0))

	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = norm.NFC.String(text)

	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F) {
			return -1
		}
		return r
	}, text), nil
}

// stdRegexReplace rewrites pattern matches in value with replacement.
// Capture groups are referenced as $1, $2, ... in the replacement.
// Non-string values pass through untouched.
func stdRegexReplace(args []interface{}) (interface{}, error) {
	value := arg(args, 0)
	if _, ok := value.(string); !ok {
		return value, nil
	}

	re, err := CompilePattern(argString(arg(args, 1)))
	if err != nil {
		return nil, err
	}

	return re.ReplaceAllString(value.(string), argString(arg(args, 2))), nil
}
