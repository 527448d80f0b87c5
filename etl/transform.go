package etl

import (
	"strings"

	"go.uber.org/zap"

	"github.com/seamline/ingest/logger"
)

// MethodDelimiter separates a library name from a method name in transform
// steps, e.g. "Condition|ifEqual". An unqualified method dispatches to the
// standard library.
const MethodDelimiter = "|"

// TransformStep is one entry of a profile's transform list: render args,
// call the method, assign the result to Var.
type TransformStep struct {
	Var    string        `json:"var"`
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
}

// Library is a named group of transform methods.
type Library interface {
	Name() string
	Supports(method string) bool
	Call(method string, args []interface{}) (interface{}, error)
	Methods() []string
}

// Engine applies a profile's transform steps sequentially over the
// extracted value map. Later steps see the output of earlier ones.
type Engine struct {
	libraries map[string]Library
	renderer  *Renderer
	logger    *zap.SugaredLogger
}

// NewEngine creates a transform engine with the given libraries registered.
// Library names are matched case-insensitively.
func NewEngine(libraries ...Library) *Engine {
	engine := &Engine{
		libraries: make(map[string]Library, len(libraries)),
		renderer:  NewRenderer(),
		logger:    logger.ComponentLogger("etl.transform"),
	}
	for _, lib := range libraries {
		engine.Register(lib)
	}
	return engine
}

// Register adds a library, replacing any previous one with the same name.
func (e *Engine) Register(lib Library) {
	e.libraries[strings.ToLower(lib.Name())] = lib
}

// Resolve splits a step method into its library and method name.
func (e *Engine) Resolve(method string) (Library, string) {
	libName := "standard"
	if idx := strings.Index(method, MethodDelimiter); idx >= 0 {
		libName = strings.ToLower(method[:idx])
		method = method[idx+len(MethodDelimiter):]
	}

	lib, ok := e.libraries[libName]
	if !ok {
		return nil, method
	}
	return lib, method
}

// Supported reports whether a step method resolves to a registered
// library method.
func (e *Engine) Supported(method string) bool {
	lib, name := e.Resolve(method)
	return lib != nil && lib.Supports(name)
}

// Apply runs steps against the extracted values and returns the final
// value map. Unsupported methods are skipped without touching the target
// var: profiles are shared across deployments with different library
// versions, and a missing method must not destroy already-mapped data.
//
// Step arguments are templates rendered against the running value map:
// strings interpolate, slices render element-wise.
func (e *Engine) Apply(steps []TransformStep, extracted map[string]interface{}) map[string]interface{} {
	values := make(map[string]interface{}, len(extracted))
	for name, value := range extracted {
		values[name] = value
	}

	for _, step := range steps {
		lib, method := e.Resolve(step.Method)
		if lib == nil || !lib.Supports(method) {
			e.logger.Warnw("Skipping unsupported transform method",
				"method", step.Method,
				"var", step.Var,
			)
			continue
		}

		args := make([]interface{}, len(step.Args))
		failed := false
		for i, arg := range step.Args {
			rendered, err := e.renderer.RenderValue(arg, values)
			if err != nil {
				e.logger.Warnw("Skipping transform step with unrenderable argument",
					"method", step.Method,
					"var", step.Var,
					"error", err,
				)
				failed = true
				break
			}
			args[i] = rendered
		}
		if failed {
			continue
		}

		result, err := lib.Call(method, args)
		if err != nil {
			e.logger.Warnw("Transform method failed",
				"method", step.Method,
				"var", step.Var,
				"error", err,
			)
			continue
		}

		values[step.Var] = result
	}

	return values
}
