package check

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	lua "github.com/yuin/gopher-lua"
)

type LuaRuntime struct{}

func NewLuaRuntime() *LuaRuntime {
	return &LuaRuntime{}
}

// Checks get the base, table, string and math libraries only. Nothing that
// reaches the filesystem, the process or other chunks is reachable.
var luaLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

var luaRemovedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

func newLuaState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range luaLibs {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range luaRemovedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (r *LuaRuntime) Compile(code string) error {
	L := newLuaState()
	defer L.Close()
	_, err := L.LoadString(code)
	return err
}

func (r *LuaRuntime) Evaluate(ctx context.Context, code, result string, timeout time.Duration) (*Verdict, error) {
	L := newLuaState()
	defer L.Close()

	// Capture stdout
	var output strings.Builder
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		for i := 1; i <= n; i++ {
			if i > 1 {
				output.WriteString("\t")
			}
			output.WriteString(L.ToStringMeta(L.Get(i)).String())
		}
		output.WriteString("\n")
		return 0
	}))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoString(code); err != nil {
		return nil, err
	}

	fn := L.GetGlobal("check")
	if fn.Type() != lua.LTFunction {
		return nil, ErrNoCheckFunction
	}

	// check may return (passed, message) or a single table.
	L.Push(fn)
	L.Push(lua.LString(result))
	if err := L.PCall(1, 2, nil); err != nil {
		return nil, err
	}
	first, second := L.Get(-2), L.Get(-1)
	L.Pop(2)

	v, err := luaVerdict(first, second)
	if err != nil {
		return nil, err
	}
	v.Output = output.String()
	return v, nil
}

func luaVerdict(first, second lua.LValue) (*Verdict, error) {
	switch val := first.(type) {
	case lua.LBool:
		v := &Verdict{Passed: bool(val)}
		if msg, ok := second.(lua.LString); ok {
			v.Message = string(msg)
		}
		return v, nil
	case *lua.LTable:
		passed, ok := val.RawGetString("passed").(lua.LBool)
		if !ok {
			return nil, errors.Wrap(ErrBadVerdict, "passed must be a boolean")
		}
		v := &Verdict{Passed: bool(passed)}
		if msg := val.RawGetString("message"); msg != lua.LNil {
			v.Message = msg.String()
		}
		return v, nil
	default:
		return nil, errors.Wrapf(ErrBadVerdict, "got %s", first.Type())
	}
}
