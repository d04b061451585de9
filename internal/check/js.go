package check

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dop251/goja"
)

type JSRuntime struct{}

func NewJSRuntime() *JSRuntime {
	return &JSRuntime{}
}

func (r *JSRuntime) Compile(code string) error {
	_, err := goja.Compile("check.js", code, false)
	return err
}

func (r *JSRuntime) Evaluate(ctx context.Context, code, result string, timeout time.Duration) (*Verdict, error) {
	vm := goja.New()

	// Capture console output
	var output strings.Builder
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.String()
		}
		output.WriteString(strings.Join(args, " "))
		output.WriteString("\n")
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(timeout):
			vm.Interrupt("timeout")
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-done:
		}
	}()
	defer close(done)

	if _, err := vm.RunString(code); err != nil {
		return nil, err
	}

	fn, ok := goja.AssertFunction(vm.Get("check"))
	if !ok {
		return nil, ErrNoCheckFunction
	}

	ret, err := fn(goja.Undefined(), vm.ToValue(result))
	if err != nil {
		return nil, err
	}

	v, err := jsVerdict(ret)
	if err != nil {
		return nil, err
	}
	v.Output = output.String()
	return v, nil
}

func jsVerdict(ret goja.Value) (*Verdict, error) {
	if ret == nil || goja.IsUndefined(ret) || goja.IsNull(ret) {
		return nil, errors.Wrap(ErrBadVerdict, "got nothing")
	}

	switch val := ret.Export().(type) {
	case bool:
		return &Verdict{Passed: val}, nil
	case map[string]any:
		passed, ok := val["passed"].(bool)
		if !ok {
			return nil, errors.Wrap(ErrBadVerdict, "passed must be a boolean")
		}
		v := &Verdict{Passed: passed}
		if msg, ok := val["message"]; ok && msg != nil {
			v.Message = fmt.Sprint(msg)
		}
		return v, nil
	default:
		return nil, errors.Wrapf(ErrBadVerdict, "got %T", val)
	}
}
