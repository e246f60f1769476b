// Package jsengine runs a skill tool's handler.js#function body in an
// isolated goja VM. It is a deliberately small surface compared to a
// general-purpose scripting host: skill handlers are short, synchronous
// transforms over their JSON arguments, not long-running agent scripts.
package jsengine

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Runtime executes skill handler scripts.
type Runtime struct{}

// NewRuntime creates a new skill script runtime.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Result holds the return value of a script execution.
type Result struct {
	Value interface{}
}

// Execute runs script in a fresh VM and returns its completion value.
// The VM is interrupted if ctx is cancelled before the script returns.
func (r *Runtime) Execute(ctx context.Context, script, scriptName, executionID string) (*Result, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(fmt.Sprintf("context cancelled: %v", ctx.Err()))
		case <-done:
		}
	}()

	start := time.Now()
	val, err := vm.RunString(script)
	if err != nil {
		return nil, wrapError(err, scriptName, time.Since(start))
	}

	return &Result{Value: exportValue(val)}, nil
}

func wrapError(err error, scriptName string, elapsed time.Duration) error {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		return fmt.Errorf("skill handler %s: interrupted after %s: %v", scriptName, elapsed, interrupted.Value())
	}
	if exc, ok := err.(*goja.Exception); ok {
		return fmt.Errorf("skill handler %s: exception: %s", scriptName, exc.String())
	}
	if compileErr, ok := err.(*goja.CompilerSyntaxError); ok {
		return fmt.Errorf("skill handler %s: syntax error: %s", scriptName, compileErr.Error())
	}
	return fmt.Errorf("skill handler %s: %w", scriptName, err)
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
