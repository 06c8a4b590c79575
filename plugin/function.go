package plugin

import (
	"fmt"
	"time"

	"github.com/semkit/semkit/core"
	"github.com/semkit/semkit/internal/util"
)

// Handler is the implementation signature of a plugin function. Arguments
// arrive already validated against the function's schema.
type Handler func(fnCtx *core.FunctionContext, args map[string]any) (any, error)

// Function exposes a plain Go function to the model with a JSON-Schema-like
// parameter specification.
//
// Responsibilities:
//   - validate model-supplied arguments against the schema before execution
//   - invoke the handler with a *core.FunctionContext (session state,
//     logging, memory, artifacts)
//   - normalize failures into *FunctionError with consistent codes:
//     VALIDATION_ERROR for schema mismatches, EXECUTION_ERROR for handler
//     errors (custom codes pass through when the handler returns a
//     *FunctionError itself)
//
// A Function has no mutable state after construction and is safe for
// concurrent use.
type Function struct {
	name        string
	description string
	parameters  map[string]any
	fn          Handler
	plugin      string // set when added to a plugin
}

// NewFunction constructs a Function from an explicit schema and handler.
//
// Example:
//
//	sum := plugin.NewFunction(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunction(name, description string, parameters map[string]any, fn Handler) *Function {
	return &Function{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionFromStruct derives the parameter schema from a struct via
// reflection; json tags name the fields, description tags document them.
func NewFunctionFromStruct(name, description string, structType any, fn Handler) *Function {
	return NewFunction(name, description, util.CreateSchema(structType), fn)
}

// Name returns the function name used in tool declarations and routing.
func (f *Function) Name() string { return f.name }

// Description returns the description exposed to models.
func (f *Function) Description() string { return f.description }

// Parameters returns the JSON schema describing accepted arguments.
func (f *Function) Parameters() map[string]any { return f.parameters }

// PluginName returns the name of the plugin this function belongs to, or "".
func (f *Function) PluginName() string { return f.plugin }

// Call validates args against the schema then invokes the handler. Failures
// surface as *FunctionError for uniform downstream handling.
func (f *Function) Call(fnCtx *core.FunctionContext, args map[string]any) (any, error) {
	logger := fnCtx.Logger()
	start := time.Now()

	logger.Debug("function.call.start", "function", f.name, "fc_id", fnCtx.FunctionCallID())

	if err := util.ValidateParameters(args, f.parameters); err != nil {
		logger.Warn("function.call.validation_failed", "function", f.name, "error", err.Error())

		return nil, &FunctionError{
			Plugin:   f.plugin,
			Function: f.name,
			Message:  fmt.Sprintf("parameter validation failed: %v", err),
			Code:     CodeValidationError,
			Details:  err,
		}
	}

	result, err := f.fn(fnCtx, args)
	if err != nil {
		if fnErr, ok := err.(*FunctionError); ok {
			logger.Error("function.call.error", "function", f.name, "error", fnErr.Message)

			return nil, fnErr
		}

		logger.Error("function.call.error", "function", f.name, "error", err.Error())

		return nil, &FunctionError{
			Plugin:   f.plugin,
			Function: f.name,
			Message:  err.Error(),
			Code:     CodeExecutionError,
		}
	}

	logger.Info("function.call.success", "function", f.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
