package etl

import (
	"sort"

	"github.com/seamline/ingest/errors"
)

type methodFunc func(args []interface{}) (interface{}, error)

// methodLibrary is the common Library implementation: a name and a method
// table. Method names are case-sensitive, matching the profile corpus.
type methodLibrary struct {
	name    string
	methods map[string]methodFunc
}

func (l *methodLibrary) Name() string {
	return l.name
}

func (l *methodLibrary) Supports(method string) bool {
	_, ok := l.methods[method]
	return ok
}

func (l *methodLibrary) Methods() []string {
	names := make([]string, 0, len(l.methods))
	for name := range l.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *methodLibrary) Call(method string, args []interface{}) (interface{}, error) {
	fn, ok := l.methods[method]
	if !ok {
		return nil, errors.Newf("%s library has no method %q", l.name, method)
	}
	return fn(args)
}

// arg returns the i-th argument or nil when absent.
func arg(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}
