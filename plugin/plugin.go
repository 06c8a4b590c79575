// Package plugin implements the function calling subsystem. A Plugin is a
// named group of schema-validated functions an agent can expose to the model;
// functions receive a core.FunctionContext for session state, memory and
// artifact access.
package plugin

import (
	"fmt"

	"github.com/semkit/semkit/internal/util"
)

// Error codes used in FunctionError.Code.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = "EXECUTION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeCancelled       = "CANCELLED"
)

// ValidationError reports a parameter validation failure.
type ValidationError = util.ValidationError

// FunctionError represents a failure during plugin function execution.
type FunctionError struct {
	Plugin   string `json:"plugin,omitempty"`
	Function string `json:"function"`
	Message  string `json:"message"`
	Code     string `json:"code"`
	Details  any    `json:"details,omitempty"`
}

func (e *FunctionError) Error() string {
	name := e.Function
	if e.Plugin != "" {
		name = e.Plugin + "." + e.Function
	}
	if e.Code != "" {
		return fmt.Sprintf("function error [%s] in %s: %s", e.Code, name, e.Message)
	}
	return fmt.Sprintf("function error in %s: %s", name, e.Message)
}

// NewFunctionError creates a FunctionError with the given details.
func NewFunctionError(function, message, code string) *FunctionError {
	return &FunctionError{
		Function: function,
		Message:  message,
		Code:     code,
	}
}

// Plugin is a named, ordered collection of functions. Function names must be
// unique within the plugin; uniqueness across plugins is enforced when they
// are registered on an agent.
type Plugin struct {
	name        string
	description string
	functions   []*Function
	byName      map[string]*Function
}

// New creates an empty plugin.
func New(name, description string) *Plugin {
	return &Plugin{
		name:        name,
		description: description,
		byName:      map[string]*Function{},
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string { return p.name }

// Description returns the plugin description.
func (p *Plugin) Description() string { return p.description }

// AddFunction registers a function on the plugin and returns the plugin for
// chaining. A duplicate name within the plugin replaces nothing and panics:
// plugins are assembled at startup, so a collision is a programming error.
func (p *Plugin) AddFunction(f *Function) *Plugin {
	if _, exists := p.byName[f.Name()]; exists {
		panic(fmt.Sprintf("plugin %s: duplicate function %s", p.name, f.Name()))
	}
	f.plugin = p.name
	p.functions = append(p.functions, f)
	p.byName[f.Name()] = f
	return p
}

// Functions returns the plugin's functions in registration order.
func (p *Plugin) Functions() []*Function {
	out := make([]*Function, len(p.functions))
	copy(out, p.functions)
	return out
}

// Get returns the named function, or nil.
func (p *Plugin) Get(name string) *Function { return p.byName[name] }
