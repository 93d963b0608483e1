package dom

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/go-rod/rod/lib/js"
)

// ScriptVersion is bumped whenever an embedded template changes behaviour.
// It is part of every function name so a page never reuses a stale cached copy.
const ScriptVersion = 1

//go:embed scripts/*.js
var scriptFS embed.FS

// Compiled in-page templates. Each one inlines common.js and receives a
// single JSON argument.
var (
	ExtractScript = MustScript("extract")
	ResolveScript = MustScript("resolve")
	ClickScript   = MustScript("click")
	TypeScript    = MustScript("type")
	SelectScript  = MustScript("select")
	PageScript    = MustScript("page")
)

// Scripts returns every compiled template.
func Scripts() []*js.Function {
	return []*js.Function{ExtractScript, ResolveScript, ClickScript, TypeScript, SelectScript, PageScript}
}

// ComposeScript reads scripts/<name>.js and wraps it with the shared helpers.
func ComposeScript(name string) (*js.Function, error) {
	common, err := scriptFS.ReadFile("scripts/common.js")
	if err != nil {
		return nil, fmt.Errorf("read common script: %w", err)
	}
	body, err := scriptFS.ReadFile("scripts/" + name + ".js")
	if err != nil {
		return nil, fmt.Errorf("read %s script: %w", name, err)
	}

	var b strings.Builder
	b.WriteString("function (arg) {\n  const bn = (")
	b.WriteString(strings.TrimSpace(string(common)))
	b.WriteString(")();\n  return (")
	b.WriteString(strings.TrimSpace(string(body)))
	b.WriteString(").call(this, arg, bn);\n}")

	return &js.Function{
		Name:         fmt.Sprintf("bn_%s_v%d", name, ScriptVersion),
		Definition:   b.String(),
		Dependencies: []*js.Function{},
	}, nil
}

// MustScript is ComposeScript for package init.
func MustScript(name string) *js.Function {
	fn, err := ComposeScript(name)
	if err != nil {
		panic(err)
	}
	return fn
}

// CheckScripts parses every template so a syntax error surfaces before a
// browser is involved.
func CheckScripts() error {
	var errs []error
	for _, fn := range Scripts() {
		if _, err := goja.Compile(fn.Name, "("+fn.Definition+")", false); err != nil {
			errs = append(errs, fmt.Errorf("script %s: %w", fn.Name, err))
		}
	}
	return errors.Join(errs...)
}
