package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/seamline/ingest/internal/httpclient"
	"github.com/seamline/ingest/logger"
)

// ValidationRule is one entry of a field's validation list.
type ValidationRule struct {
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
}

// Violation records a single validation failure. Violations are collected,
// never thrown: a batch keeps flowing and the errors travel with the item.
type Violation struct {
	Message string      `json:"message"`
	Name    string      `json:"name,omitempty"`
	Method  string      `json:"method"`
	Value   interface{} `json:"value,omitempty"`
}

// RemoteChecker performs the HTTP round trip behind restVerify.
type RemoteChecker interface {
	Check(ctx context.Context, uri string) (int, error)
}

// HTTPChecker is the production RemoteChecker: an SSRF-guarded, rate-paced
// GET against the configured endpoint.
type HTTPChecker struct {
	client *httpclient.PacedClient
}

// NewHTTPChecker creates a checker with the given timeout and pacing.
func NewHTTPChecker(timeout time.Duration, requestsPerMinute int) *HTTPChecker {
	return &HTTPChecker{client: httpclient.NewPacedClient(timeout, requestsPerMinute)}
}

// NewHTTPCheckerWithClient wraps a pre-built paced client (used in tests).
func NewHTTPCheckerWithClient(client *httpclient.PacedClient) *HTTPChecker {
	return &HTTPChecker{client: client}
}

func (c *HTTPChecker) Check(ctx context.Context, uri string) (int, error) {
	resp, err := c.client.Get(ctx, uri)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Validator runs a field's validation rules against its merged value.
//
// Every rule except isRequired passes on nil: optional fields validate
// only when present. Pair a format rule with isRequired to make a field
// mandatory.
type Validator struct {
	checker RemoteChecker
	logger  *zap.SugaredLogger
}

// NewValidator creates a validator. checker may be nil when no profile
// uses restVerify.
func NewValidator(checker RemoteChecker) *Validator {
	return &Validator{
		checker: checker,
		logger:  logger.ComponentLogger("etl.validate"),
	}
}

// Apply runs every rule for a field and returns the violations.
func (v *Validator) Apply(fieldName string, value interface{}, rules []ValidationRule) []Violation {
	var violations []Violation

	for _, rule := range rules {
		if rule.Method == "" {
			violations = append(violations, Violation{
				Message: "Fatal Validation Error: Malformed configuration object. Missing validation method.",
				Method:  "system.invalidMethod",
			})
			continue
		}

		passed, known := v.run(rule.Method, value, rule.Args)
		if !known {
			violations = append(violations, Violation{
				Message: fmt.Sprintf("Fatal Validation Error: Validation method '%s' does not exist.", rule.Method),
				Method:  "system.methodDoesNotExist",
			})
			continue
		}

		if !passed {
			label := unCamelCase(rule.Method)
			violations = append(violations, Violation{
				Message: fmt.Sprintf("Field '%s' failed validation check for '%s'", fieldName, label),
				Name:    fieldName,
				Method:  label,
				Value:   value,
			})
		}
	}

	return violations
}

// run dispatches a single rule. The second result is false for unknown
// methods.
func (v *Validator) run(method string, value interface{}, args []interface{}) (bool, bool) {
	switch method {
	case "isRequired":
		return ruleIsRequired(value), true
	case "isNumeric":
		return value == nil || isNumeric(value), true
	case "isNotNumeric":
		return value == nil || !isNumeric(value), true
	case "matchesRegex":
		return ruleMatchesRegex(value, args), true
	case "matchesPattern":
		return ruleMatchesPattern(value, args), true
	case "isJson":
		return ruleIsJSON(value), true
	case "isOneOf":
		return ruleIsOneOf(value, args), true
	case "isUrl":
		return ruleIsURL(value), true
	case "minCharLength":
		return ruleCharLength(value, args, true), true
	case "maxCharLength":
		return ruleCharLength(value, args, false), true
	case "restVerify":
		return v.ruleRestVerify(value, args), true
	default:
		return false, false
	}
}

func ruleIsRequired(value interface{}) bool {
	if text, ok := value.(string); ok {
		value = strings.TrimSpace(text)
	}
	return Truthy(value)
}

func isNumeric(value interface{}) bool {
	switch val := value.(type) {
	case int, int64, float64, json.Number:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return err == nil
	default:
		return false
	}
}

func ruleMatchesRegex(value interface{}, args []interface{}) bool {
	if value == nil {
		return true
	}
	re, err := CompilePattern(argString(arg(args, 0)))
	if err != nil {
		return false
	}
	return re.MatchString(argString(value))
}

// ruleMatchesPattern matches a glob-ish pattern: * means one-or-more of
// anything, anchored to whole lines.
func ruleMatchesPattern(value interface{}, args []interface{}) bool {
	if value == nil {
		return true
	}
	glob := argString(arg(args, 0))
	re, err := CompilePattern("(?m)^" + strings.ReplaceAll(glob, "*", ".+") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(argString(value))
}

// ruleIsJSON requires a string decoding to an object or array; scalars and
// non-strings fail.
func ruleIsJSON(value interface{}) bool {
	if value == nil {
		return true
	}
	text, ok := value.(string)
	if !ok {
		return false
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return false
	}
	switch decoded.(type) {
	case map[string]interface{}, []interface{}:
		return true
	default:
		return false
	}
}

func ruleIsOneOf(value interface{}, args []interface{}) bool {
	if value == nil {
		return true
	}
	allowed, ok := arg(args, 0).([]interface{})
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if looseEqual(value, candidate) {
			return true
		}
	}
	return false
}

func ruleIsURL(value interface{}) bool {
	if value == nil {
		return true
	}
	text, ok := value.(string)
	if !ok {
		return false
	}
	parsed, err := url.Parse(text)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}

func ruleCharLength(value interface{}, args []interface{}, min bool) bool {
	if value == nil {
		return true
	}

	var text string
	switch val := value.(type) {
	case string:
		text = val
	case int, int64, float64, json.Number, bool:
		text = Stringify(val)
	default:
		// non-scalar values have no meaningful character length
		return false
	}

	limit, ok := argInt(arg(args, 0))
	if !ok {
		return false
	}
	if min {
		return len(text) >= limit
	}
	return len(text) <= limit
}

// ruleRestVerify substitutes the value into the {value} slot of the
// configured URI and passes iff the endpoint answers 200.
func (v *Validator) ruleRestVerify(value interface{}, args []interface{}) bool {
	if value == nil {
		return true
	}
	if v.checker == nil {
		v.logger.Warnw("restVerify rule configured but no remote checker available")
		return false
	}

	uriTemplate := argString(arg(args, 0))
	uri := strings.ReplaceAll(uriTemplate, "{value}", url.QueryEscape(argString(value)))

	status, err := v.checker.Check(context.Background(), uri)
	if err != nil {
		v.logger.Warnw("restVerify request failed", "uri", uriTemplate, "error", err)
		return false
	}
	return status == http.StatusOK
}

// unCamelCase renders a rule method name as a human label:
// "isRequired" -> "Is Required".
func unCamelCase(method string) string {
	var b strings.Builder
	for i, r := range method {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
