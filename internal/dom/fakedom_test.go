package dom

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/dop251/goja"
	"github.com/go-rod/rod/lib/js"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/fakedom.js
var fakeDOMSource string

// fakePage runs templates against the goja fake DOM and satisfies Evaluator.
type fakePage struct {
	t     *testing.T
	vm    *goja.Runtime
	calls int
}

// newFakePage builds a document by running fixture, which may use h() and mount().
func newFakePage(t *testing.T, fixture string) *fakePage {
	t.Helper()
	vm := goja.New()
	_, err := vm.RunString(fakeDOMSource)
	require.NoError(t, err, "load fake dom")
	_, err = vm.RunString(fixture)
	require.NoError(t, err, "build fixture")
	return &fakePage{t: t, vm: vm}
}

func (p *fakePage) Evaluate(_ context.Context, fn *js.Function, arg any, out any) error {
	p.calls++
	raw, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	if err := p.vm.Set("__arg", string(raw)); err != nil {
		return err
	}
	src := fmt.Sprintf(`(function () {
  var fn = (%s);
  globalThis.__result = undefined;
  globalThis.__error = undefined;
  Promise.resolve(fn.call(globalThis, JSON.parse(__arg))).then(
    function (v) { globalThis.__result = JSON.stringify(v === undefined ? null : v); },
    function (e) { globalThis.__error = String(e && e.stack ? e.stack : e); });
})();`, fn.Definition)
	if _, err := p.vm.RunString(src); err != nil {
		return fmt.Errorf("run %s: %w", fn.Name, err)
	}
	if e := p.vm.Get("__error"); e != nil && !goja.IsUndefined(e) {
		return fmt.Errorf("%s raised: %s", fn.Name, e.String())
	}
	res := p.vm.Get("__result")
	if res == nil || goja.IsUndefined(res) {
		return fmt.Errorf("%s did not settle", fn.Name)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(res.String()), out)
}

// eval runs an expression in the page and exports its value.
func (p *fakePage) eval(expr string) any {
	p.t.Helper()
	v, err := p.vm.RunString(expr)
	require.NoError(p.t, err, expr)
	return v.Export()
}

// events returns the dispatched event types, in order, for elements with tag.
func (p *fakePage) events(tag string) []string {
	p.t.Helper()
	raw := p.eval(`JSON.stringify(__events)`).(string)
	var all []struct {
		Type string `json:"type"`
		Tag  string `json:"tag"`
	}
	require.NoError(p.t, json.Unmarshal([]byte(raw), &all))
	var out []string
	for _, e := range all {
		if e.Tag == tag {
			out = append(out, e.Type)
		}
	}
	return out
}

// mustExtract extracts the fixture and returns the element with the given snap id.
func mustExtract(t *testing.T, p *fakePage) *Extraction {
	t.Helper()
	ex, err := NewExtractor(nil).Extract(context.Background(), p, "")
	require.NoError(t, err)
	return ex
}

func elementByText(t *testing.T, ex *Extraction, text string) Element {
	t.Helper()
	for _, el := range ex.Elements {
		if el.Text == text {
			return el
		}
	}
	t.Fatalf("no extracted element with text %q", text)
	return Element{}
}

func ptr[T any](v T) *T { return &v }
