// Package luascript evaluates document script blocks as Lua.
//
// Every block runs in a fresh interpreter with the base, table, string and math libraries and these
// globals:
//
//	out.append(v)            write tostring(v)
//	out.escape(v)            write tostring(v), HTML escaped
//	out.include(path, esc)   write a file or directory below the domain root
//	out.br()                 write <br/>
//	domain.name, domain.root, domain.hostnames
//	document.name
//	request.method, request.path, request.query, request.host, request.header(name)
//	response.header(name, value), response.status(code)
//
// The out functions can be called with a dot or a colon.
package luascript

import (
	"context"
	"net/http"

	"github.com/advdv/twine/pipeline"
	"github.com/cockroachdb/errors"
	lua "github.com/yuin/gopher-lua"
)

// Evaluator implements [pipeline.Evaluator].
type Evaluator struct{}

// New returns a Lua evaluator.
func New() *Evaluator { return &Evaluator{} }

var _ pipeline.Evaluator = (*Evaluator)(nil)

// Evaluate runs src. The interpreter stops when ctx is done.
func (e *Evaluator) Evaluate(ctx context.Context, src string, b *pipeline.Bindings) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	openLibs(L)
	L.SetContext(ctx)

	L.SetGlobal("out", outTable(L, b.Out))
	L.SetGlobal("domain", domainTable(L, b))
	L.SetGlobal("document", documentTable(L, b))
	L.SetGlobal("request", requestTable(L, b.Request))
	L.SetGlobal("response", responseTable(L, b.Response))

	if err := L.DoString(src); err != nil {
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) && apiErr.Object != nil {
			return errors.Newf("lua: %s", apiErr.Object.String())
		}

		return errors.Wrap(err, "lua")
	}

	return nil
}

func openLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	// scripts reach the file system only through out.include
	for _, name := range []string{"dofile", "loadfile", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func outTable(L *lua.LState, out *pipeline.Output) *lua.LTable {
	tbl := L.NewTable()

	// arg returns the n-th argument, skipping the table itself for colon calls.
	arg := func(L *lua.LState, n int) int {
		if L.Get(1) == tbl {
			return n + 1
		}
		return n
	}

	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"append": func(L *lua.LState) int {
			out.Append(L.ToStringMeta(L.Get(arg(L, 1))).String())
			return 0
		},
		"escape": func(L *lua.LState) int {
			out.AppendEscaped(L.ToStringMeta(L.Get(arg(L, 1))).String())
			return 0
		},
		"include": func(L *lua.LState) int {
			n := arg(L, 1)
			if err := out.Include(L.CheckString(n), L.OptBool(n+1, false)); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		"br": func(L *lua.LState) int {
			out.Br()
			return 0
		},
	})

	return tbl
}

func domainTable(L *lua.LState, b *pipeline.Bindings) *lua.LTable {
	tbl := L.NewTable()
	if b.Domain == nil {
		return tbl
	}

	hosts := L.NewTable()
	for _, h := range b.Domain.Hostnames {
		hosts.Append(lua.LString(h))
	}

	tbl.RawSetString("name", lua.LString(b.Domain.Name))
	tbl.RawSetString("root", lua.LString(b.Domain.Root))
	tbl.RawSetString("hostnames", hosts)

	return tbl
}

func documentTable(L *lua.LState, b *pipeline.Bindings) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("name", lua.LString(b.DocumentName))

	return tbl
}

func requestTable(L *lua.LState, r *http.Request) *lua.LTable {
	tbl := L.NewTable()
	if r == nil {
		return tbl
	}

	tbl.RawSetString("method", lua.LString(r.Method))
	tbl.RawSetString("path", lua.LString(r.URL.Path))
	tbl.RawSetString("query", lua.LString(r.URL.RawQuery))
	tbl.RawSetString("host", lua.LString(r.Host))
	tbl.RawSetString("header", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(r.Header.Get(L.CheckString(L.GetTop()))))
		return 1
	}))

	return tbl
}

func responseTable(L *lua.LState, w http.ResponseWriter) *lua.LTable {
	tbl := L.NewTable()
	if w == nil {
		return tbl
	}

	tbl.RawSetString("header", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		w.Header().Set(L.CheckString(top-1), L.CheckString(top))
		return 0
	}))
	tbl.RawSetString("status", L.NewFunction(func(L *lua.LState) int {
		w.WriteHeader(L.CheckInt(L.GetTop()))
		return 0
	}))

	return tbl
}
