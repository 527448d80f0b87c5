package etl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	status int
	err    error
	uri    string
}

func (s *stubChecker) Check(_ context.Context, uri string) (int, error) {
	s.uri = uri
	return s.status, s.err
}

func rules(methods ...string) []ValidationRule {
	out := make([]ValidationRule, len(methods))
	for i, m := range methods {
		out[i] = ValidationRule{Method: m}
	}
	return out
}

func TestValidatorNullOptionality(t *testing.T) {
	v := NewValidator(&stubChecker{status: 500})

	// every rule except isRequired passes on nil, even with bogus args
	passing := []ValidationRule{
		{Method: "isNumeric"},
		{Method: "isNotNumeric"},
		{Method: "matchesRegex", Args: []interface{}{`/x/`}},
		{Method: "matchesPattern", Args: []interface{}{"x*"}},
		{Method: "isJson"},
		{Method: "isOneOf", Args: []interface{}{[]interface{}{"a"}}},
		{Method: "isUrl"},
		{Method: "minCharLength", Args: []interface{}{3}},
		{Method: "maxCharLength", Args: []interface{}{3}},
		{Method: "restVerify", Args: []interface{}{"http://example.com/{value}"}},
	}
	assert.Empty(t, v.Apply("field", nil, passing))

	violations := v.Apply("field", nil, rules("isRequired"))
	require.Len(t, violations, 1)
	assert.Equal(t, "Is Required", violations[0].Method)
	assert.Equal(t, "field", violations[0].Name)
	assert.Contains(t, violations[0].Message, "Field 'field' failed validation check for 'Is Required'")
}

func TestValidatorIsRequired(t *testing.T) {
	v := NewValidator(nil)

	assert.Empty(t, v.Apply("f", "present", rules("isRequired")))
	assert.Len(t, v.Apply("f", "   ", rules("isRequired")), 1)
	assert.Len(t, v.Apply("f", "", rules("isRequired")), 1)
	assert.Len(t, v.Apply("f", "0", rules("isRequired")), 1)
}

func TestValidatorRules(t *testing.T) {
	v := NewValidator(nil)

	tests := []struct {
		name  string
		rule  ValidationRule
		value interface{}
		pass  bool
	}{
		{"numeric string", ValidationRule{Method: "isNumeric"}, "12.5", true},
		{"numeric float", ValidationRule{Method: "isNumeric"}, float64(3), true},
		{"numeric word", ValidationRule{Method: "isNumeric"}, "twelve", false},
		{"not numeric", ValidationRule{Method: "isNotNumeric"}, "twelve", true},
		{"not numeric fails on number", ValidationRule{Method: "isNotNumeric"}, "12", false},
		{"regex hit", ValidationRule{Method: "matchesRegex", Args: []interface{}{`/^[A-Z]{2}$/`}}, "NV", true},
		{"regex miss", ValidationRule{Method: "matchesRegex", Args: []interface{}{`/^[A-Z]{2}$/`}}, "Nevada", false},
		{"glob hit", ValidationRule{Method: "matchesPattern", Args: []interface{}{"FTP1-*"}}, "FTP1-ACME", true},
		{"glob needs one-or-more", ValidationRule{Method: "matchesPattern", Args: []interface{}{"FTP1-*"}}, "FTP1-", false},
		{"json object", ValidationRule{Method: "isJson"}, `{"a":1}`, true},
		{"json array", ValidationRule{Method: "isJson"}, `[1]`, true},
		{"json scalar fails", ValidationRule{Method: "isJson"}, `42`, false},
		{"json garbage fails", ValidationRule{Method: "isJson"}, `{`, false},
		{"enum member", ValidationRule{Method: "isOneOf", Args: []interface{}{[]interface{}{"a", "b"}}}, "b", true},
		{"enum loose match", ValidationRule{Method: "isOneOf", Args: []interface{}{[]interface{}{float64(5)}}}, "5", true},
		{"enum miss", ValidationRule{Method: "isOneOf", Args: []interface{}{[]interface{}{"a"}}}, "z", false},
		{"url ok", ValidationRule{Method: "isUrl"}, "https://example.com/x", true},
		{"url no scheme", ValidationRule{Method: "isUrl"}, "example.com/x", false},
		{"min length ok", ValidationRule{Method: "minCharLength", Args: []interface{}{3}}, "abcd", true},
		{"min length short", ValidationRule{Method: "minCharLength", Args: []interface{}{3}}, "ab", false},
		{"max length ok", ValidationRule{Method: "maxCharLength", Args: []interface{}{3}}, "abc", true},
		{"max length long", ValidationRule{Method: "maxCharLength", Args: []interface{}{3}}, "abcd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := v.Apply("f", tt.value, []ValidationRule{tt.rule})
			if tt.pass {
				assert.Empty(t, violations)
			} else {
				assert.Len(t, violations, 1)
			}
		})
	}
}

func TestValidatorConfigurationDefects(t *testing.T) {
	v := NewValidator(nil)

	violations := v.Apply("f", "x", []ValidationRule{
		{Method: ""},
		{Method: "noSuchRule"},
		{Method: "isRequired"},
	})
	require.Len(t, violations, 2)
	assert.Equal(t, "system.invalidMethod", violations[0].Method)
	assert.Equal(t, "system.methodDoesNotExist", violations[1].Method)
	assert.Contains(t, violations[1].Message, "noSuchRule")
}

func TestValidatorRestVerify(t *testing.T) {
	checker := &stubChecker{status: 200}
	v := NewValidator(checker)
	rule := []ValidationRule{{Method: "restVerify", Args: []interface{}{"http://example.com/check/{value}"}}}

	assert.Empty(t, v.Apply("f", "a b", rule))
	assert.Equal(t, "http://example.com/check/a+b", checker.uri)

	checker.status = 404
	assert.Len(t, v.Apply("f", "a b", rule), 1)

	// no checker wired means the rule cannot pass
	assert.Len(t, NewValidator(nil).Apply("f", "x", rule), 1)
}

func TestUnCamelCase(t *testing.T) {
	assert.Equal(t, "Is Required", unCamelCase("isRequired"))
	assert.Equal(t, "Min Char Length", unCamelCase("minCharLength"))
	assert.Equal(t, "Value", unCamelCase("value"))
}
