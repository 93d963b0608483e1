package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/js"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsernerd/internal/browser"
	"browsernerd/internal/dom"
	"browsernerd/internal/sampler"
	"browsernerd/internal/snapshot"
)

func sp(s string) *string { return &s }

// stubPage answers each in-page template with a canned result.
type stubPage struct {
	responses map[string]any
	args      map[string]map[string]any
	calls     int
}

func newStubPage() *stubPage {
	return &stubPage{responses: map[string]any{}, args: map[string]map[string]any{}}
}

func (p *stubPage) on(fn *js.Function, response any) { p.responses[fn.Name] = response }

func (p *stubPage) Evaluate(_ context.Context, fn *js.Function, arg any, out any) error {
	p.calls++
	raw, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	p.args[fn.Name] = decoded

	resp, ok := p.responses[fn.Name]
	if !ok {
		return fmt.Errorf("unexpected script %s", fn.Name)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// fakeBackend keeps tabs in memory and shares one stub page between them.
type fakeBackend struct {
	page      *stubPage
	tabs      []*browser.Tab
	active    string
	next      int
	navigated []string
	info      browser.PageInfo
}

func newFakeBackend() *fakeBackend {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := &fakeBackend{
		page: newStubPage(),
		tabs: []*browser.Tab{{ID: "tab-1", URL: "https://shop.test/", Title: "Shop", CreatedAt: created}},
		next: 2,
	}
	b.active = "tab-1"
	b.info.URL = "https://shop.test/"
	b.info.Title = "Shop"
	b.info.ReadyState = "complete"
	b.info.Viewport.Width, b.info.Viewport.Height = 1280, 720
	b.info.Scroll.Y = 120
	return b
}

func (b *fakeBackend) find(tabID string) (*browser.Tab, error) {
	for _, t := range b.tabs {
		if t.ID == tabID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrTabNotFound, tabID)
}

func (b *fakeBackend) Page(_ context.Context, _ string, tabID string) (*Page, error) {
	if tabID == "" {
		tabID = b.active
	}
	t, err := b.find(tabID)
	if err != nil {
		return nil, err
	}
	return &Page{TabID: t.ID, URL: t.URL, Title: t.Title, Eval: b.page}, nil
}

func (b *fakeBackend) ListTabs(context.Context, string) ([]*browser.Tab, string, error) {
	return append([]*browser.Tab(nil), b.tabs...), b.active, nil
}

func (b *fakeBackend) CreateTab(_ context.Context, _ string, url string) (*browser.Tab, error) {
	t := &browser.Tab{ID: fmt.Sprintf("tab-%d", b.next), URL: url, CreatedAt: time.Now()}
	b.next++
	b.tabs = append(b.tabs, t)
	return t, nil
}

func (b *fakeBackend) SwitchTab(_ context.Context, _ string, tabID string) (*browser.Tab, error) {
	t, err := b.find(tabID)
	if err != nil {
		return nil, err
	}
	b.active = tabID
	return t, nil
}

func (b *fakeBackend) CloseTab(_ context.Context, _ string, tabID string) error {
	if _, err := b.find(tabID); err != nil {
		return err
	}
	if len(b.tabs) == 1 {
		return browser.ErrLastTabProtected
	}
	kept := b.tabs[:0]
	for _, t := range b.tabs {
		if t.ID != tabID {
			kept = append(kept, t)
		}
	}
	b.tabs = kept
	if b.active == tabID {
		b.active = b.tabs[0].ID
	}
	return nil
}

func (b *fakeBackend) Navigate(_ context.Context, _ string, tabID, url string, _ browser.WaitUntil, _ time.Duration) (*browser.PageInfo, error) {
	if _, err := b.find(tabID); err != nil {
		return nil, err
	}
	b.navigated = append(b.navigated, url)
	info := b.info
	info.URL = url
	return &info, nil
}

func (b *fakeBackend) Info(_ context.Context, _ string, tabID string) (*browser.PageInfo, error) {
	if _, err := b.find(tabID); err != nil {
		return nil, err
	}
	info := b.info
	return &info, nil
}

var (
	searchBox = dom.Element{SnapID: "0", Tag: "input", Locators: dom.LocatorBundle{
		FrameID: "main", Role: sp("searchbox"), Name: sp("Search"), CSS: `input#q[name="q"]`, Tag: "input",
		Attrs: &dom.Attrs{ID: "q", Name: "q", Type: "search", Placeholder: "Search"},
	}}
	buyButton = dom.Element{SnapID: "1", Tag: "button", Text: "Buy", Locators: dom.LocatorBundle{
		FrameID: "main", Role: sp("button"), Name: sp("Buy"), CSS: "button", Tag: "button", Attrs: &dom.Attrs{},
	}}
)

type harness struct {
	backend *fakeBackend
	store   *snapshot.MemoryStore
	reg     *Registry
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(),
		store:   snapshot.NewMemoryStore(snapshot.DefaultMaxPerSession, nil),
		now:     time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	reg, err := NewBrowserTools(Deps{
		Backend:        h.backend,
		Store:          h.store,
		SamplerOptions: sampler.DefaultOptions(),
		Now:            func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.reg = reg
	return h
}

func (h *harness) seed(t *testing.T, id string, at time.Time, elements ...dom.Element) {
	t.Helper()
	require.NoError(t, h.store.Store(context.Background(), &snapshot.Snapshot{
		ID: id, SessionID: DefaultSessionID, URL: "https://shop.test/", FrameID: "main",
		CreatedAt: at, HTML: "<main></main>", Elements: elements,
		Meta: snapshot.Meta{ElementCount: len(elements)},
	}))
}

func (h *harness) run(t *testing.T, name string, args map[string]any) (*ToolResult, error) {
	t.Helper()
	res, err := h.reg.Execute(context.Background(), name, args)
	require.NotNil(t, res)
	return res, err
}

func okReport(strategy dom.Strategy, confidence float64) dom.ResolutionReport {
	return dom.ResolutionReport{Success: true, Strategy: strategy, Confidence: confidence, CandidateCount: 1}
}

func TestNewBrowserTools(t *testing.T) {
	_, err := NewBrowserTools(Deps{Store: snapshot.NewMemoryStore(0, nil)})
	assert.Error(t, err)
	_, err = NewBrowserTools(Deps{Backend: newFakeBackend()})
	assert.Error(t, err)

	h := newHarness(t)
	assert.Equal(t, 12, h.reg.Count())
	assert.Len(t, h.reg.GetByCategory(CategoryTabs), 4)
	assert.Len(t, h.reg.GetByCategory(CategoryAct), 3)
}

func TestSnapshotTool(t *testing.T) {
	h := newHarness(t)
	h.backend.page.on(dom.PageScript, dom.PageSource{
		URL: "https://shop.test/", Title: "Shop", Found: true,
		HTML: `<html><body><main><input id="q" name="q" type="search" placeholder="Search"><button>Buy</button></main></body></html>`,
	})
	h.backend.page.on(dom.ExtractScript, dom.Extraction{FrameID: "main", Elements: []dom.Element{searchBox, buyButton}})

	res, err := h.run(t, ToolSnapshot, nil)
	require.NoError(t, err)

	assert.Contains(t, res.Result, "DOM Snapshot extracted (")
	assert.Contains(t, res.Result, "Snapshot ID: snap_1767348000000_")
	assert.Contains(t, res.Result, "<button>Buy</button>")
	assert.Contains(t, res.Result, "Found 2 interactive elements:\n"+
		`  [0] <input type="search" name="q" placeholder="Search" role="searchbox">`+"\n"+
		`  [1] <button role="button"> "Buy"`)
	assert.Contains(t, res.Result, "Note: The live page has NOT been modified.")

	latest, err := h.store.Latest(context.Background(), DefaultSessionID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "Shop", latest.Title)
	assert.Equal(t, "main", latest.FrameID)
	assert.Equal(t, h.now, latest.CreatedAt)
	assert.Len(t, latest.Elements, 2)
	assert.Equal(t, 2, latest.Meta.ElementCount)
	assert.Contains(t, res.Result, "Snapshot ID: "+latest.ID+"\n")
}

// passCompressor keeps the html and records the iteration limit it was given.
type passCompressor struct{ iterations []int }

func (c *passCompressor) Compress(_ context.Context, src string, _, maxIterations int) (sampler.CompressResult, error) {
	c.iterations = append(c.iterations, maxIterations)
	return sampler.CompressResult{HTML: src, EstimatedTokens: sampler.EstimateTokens(src)}, nil
}

func TestSnapshotTool_MaxIterations(t *testing.T) {
	h := newHarness(t)
	comp := &passCompressor{}
	reg, err := NewBrowserTools(Deps{
		Backend:        h.backend,
		Store:          h.store,
		Sampler:        sampler.New(comp, nil),
		SamplerOptions: sampler.DefaultOptions(),
		Now:            func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.reg = reg
	h.backend.page.on(dom.PageScript, dom.PageSource{URL: "https://shop.test/", Found: true, HTML: "<main><button>Buy</button></main>"})
	h.backend.page.on(dom.ExtractScript, dom.Extraction{FrameID: "main", Elements: []dom.Element{buyButton}})

	_, err = h.run(t, ToolSnapshot, nil)
	require.NoError(t, err)
	_, err = h.run(t, ToolSnapshot, map[string]any{"maxIterations": 9.0})
	require.NoError(t, err)
	assert.Equal(t, []int{sampler.DefaultMaxIterations, 9}, comp.iterations)

	schema := h.reg.Get(ToolSnapshot).Schema.Properties["maxIterations"]
	assert.Equal(t, "integer", schema.Type)
	assert.Equal(t, sampler.DefaultMaxIterations, schema.Default)
}

func TestSnapshotTool_SelectorMiss(t *testing.T) {
	h := newHarness(t)
	h.backend.page.on(dom.PageScript, dom.PageSource{URL: "https://shop.test/", Found: false})

	res, err := h.run(t, ToolSnapshot, map[string]any{"selector": "#nope"})
	require.Error(t, err)
	assert.Contains(t, res.Result, `Error: No element matches selector "#nope"`)
	assert.Equal(t, "#nope", h.backend.page.args[dom.PageScript.Name]["selector"])

	latest, err := h.store.Latest(context.Background(), DefaultSessionID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSnapshotTool_UnknownTab(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, ToolSnapshot, map[string]any{"tabId": "tab-9"})
	assert.ErrorIs(t, err, browser.ErrTabNotFound)
	assert.Equal(t, "Error: Tab tab-9 not found. Use browser_list_tabs to see available tabs.", res.Result)
}

func TestClickTool(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, searchBox, buyButton)
	h.backend.page.on(dom.ClickScript, map[string]any{
		"report": okReport(dom.StrategyRoleName, 1),
		"tag":    "button", "text": "Buy", "role": "button", "name": "Buy",
	})

	res, err := h.run(t, ToolClick, map[string]any{"snapshotId": "snap_a", "snapId": "1"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully clicked element [1]:\n"+
		"  Tag: <button>\n"+
		"  Role: button\n"+
		"  Name: \"Buy\"\n"+
		"  Text: \"Buy\"\n"+
		"\nResolution:\n"+
		"  Strategy: role-name\n"+
		"  Confidence: 100%\n", res.Result)

	sent := h.backend.page.args[dom.ClickScript.Name]
	assert.Equal(t, 0.75, sent["minConfidence"])
	locators := sent["locators"].(map[string]any)
	assert.Equal(t, "button", locators["role"])
	assert.Equal(t, "Buy", locators["name"])
}

func TestClickTool_WaitsForNavigation(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, buyButton)
	h.backend.page.on(dom.ClickScript, map[string]any{"report": okReport(dom.StrategyCSS, 0.95), "tag": "button"})

	res, err := h.run(t, ToolClick, map[string]any{
		"snapshotId": "snap_a", "snapId": "1", "waitForNavigation": true, "waitTime": 5.0,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "  Confidence: 95%\n")
	assert.Contains(t, res.Result, "\nWaited 5ms for navigation to complete.")
}

func TestClickTool_ResolutionFailure(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, buyButton)
	h.backend.page.on(dom.ClickScript, map[string]any{"report": dom.ResolutionReport{
		Strategy: dom.StrategyNone, Confidence: 0.4, Error: "No element matched the locators.", CandidateCount: 7,
	}})

	res, err := h.run(t, ToolClick, map[string]any{"snapshotId": "snap_a", "snapId": "1"})
	assert.ErrorIs(t, err, dom.ErrResolutionFailed)
	assert.Equal(t, "Error: Failed to resolve element [1]. No element matched the locators.\n"+
		"Try calling browser_get_dom_snapshot again to get a fresh snapshot.", res.Result)
}

func TestClickTool_StaleReference(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, buyButton)

	res, err := h.run(t, ToolClick, map[string]any{"snapshotId": "snap_gone", "snapId": "1"})
	assert.ErrorIs(t, err, snapshot.ErrStaleReference)
	assert.Contains(t, res.Result, "Error: Element not found in snapshot. Snapshot ID: snap_gone, Element ID: 1.")

	res, err = h.run(t, ToolClick, map[string]any{"snapshotId": "snap_a", "snapId": "42"})
	assert.ErrorIs(t, err, snapshot.ErrStaleReference)
	assert.Contains(t, res.Result, "Element ID: 42.")
	assert.Zero(t, h.backend.page.calls, "nothing is evaluated for a stale reference")
}

func TestClickTool_SessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, buyButton)

	ctx := WithSessionID(context.Background(), "other")
	_, err := h.reg.Execute(ctx, ToolClick, map[string]any{"snapshotId": "snap_a", "snapId": "1"})
	assert.ErrorIs(t, err, snapshot.ErrStaleReference)
}

func TestTypeTool(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, searchBox)
	h.backend.page.on(dom.TypeScript, map[string]any{
		"report":    okReport(dom.StrategyCSS, 0.95),
		"tag":       "input",
		"inputType": "search", "name": "q", "placeholder": "Search",
		"valueBefore": "old", "valueAfter": "shoes", "length": 5, "submitted": true,
	})

	res, err := h.run(t, ToolType, map[string]any{
		"snapshotId": "snap_a", "snapId": "0", "text": "shoes", "pressEnter": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Successfully typed into element [0]:\n"+
		"  Tag: <input>\n"+
		"  Type: search\n"+
		"  Name: q\n"+
		"  Placeholder: \"Search\"\n"+
		"  Cleared: \"old\" → \"\"\n"+
		"  New value: \"shoes\" (5 characters)\n"+
		"\nResolution:\n"+
		"  Strategy: css\n"+
		"  Confidence: 95%\n"+
		"\n✓ Pressed Enter key (form was submitted)", res.Result)

	sent := h.backend.page.args[dom.TypeScript.Name]
	assert.Equal(t, "shoes", sent["text"])
	assert.Equal(t, true, sent["clear"])
	assert.Equal(t, true, sent["pressEnter"])
}

func TestTypeTool_AppendWithDelay(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, searchBox)
	h.backend.page.on(dom.TypeScript, map[string]any{
		"report": okReport(dom.StrategyRoleName, 1), "tag": "input",
		"valueBefore": "red ", "valueAfter": "red shoes", "length": 9,
	})

	res, err := h.run(t, ToolType, map[string]any{
		"snapshotId": "snap_a", "snapId": "0", "text": "shoes", "clear": false, "delay": 20,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "  Previous value: \"red \"\n")
	assert.Contains(t, res.Result, "\n✓ Typed with 20ms delay between characters")
	assert.Equal(t, false, h.backend.page.args[dom.TypeScript.Name]["clear"])
	assert.Equal(t, 20.0, h.backend.page.args[dom.TypeScript.Name]["delay"])
}

func TestTypeTool_TypeMismatch(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, buyButton)
	h.backend.page.on(dom.TypeScript, map[string]any{
		"report": okReport(dom.StrategyRoleName, 1),
		"error":  map[string]any{"kind": "type_mismatch", "message": "Element is a <button>, not an input or textarea"},
	})

	res, err := h.run(t, ToolType, map[string]any{"snapshotId": "snap_a", "snapId": "1", "text": "x"})
	assert.ErrorIs(t, err, dom.ErrElementTypeMismatch)
	assert.Equal(t, "Error: element type mismatch: Element is a <button>, not an input or textarea", res.Result)
}

func TestTypeTool_RequiresText(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, ToolType, map[string]any{"snapshotId": "snap_a", "snapId": "1"})
	assert.ErrorIs(t, err, ErrMissingRequiredArg)
}

var sizeSelect = dom.Element{SnapID: "2", Tag: "select", Locators: dom.LocatorBundle{
	Role: sp("combobox"), Name: sp("Size"), CSS: `select#size[name="size"]`, Tag: "select",
	Attrs: &dom.Attrs{ID: "size", Name: "size"},
}}

func TestSelectTool(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, sizeSelect)
	h.backend.page.on(dom.SelectScript, map[string]any{
		"report": okReport(dom.StrategyCSS, 0.95),
		"name":   "size", "id": "size",
		"selectionMethod": "index",
		"before":          dom.OptionState{Index: 0, Value: "s", Text: "Small"},
		"after":           dom.OptionState{Index: 1, Value: "m", Text: "Medium"},
		"totalOptions":    3,
		"allOptions": []dom.OptionInfo{
			{Index: 0, Value: "s", Text: "Small"},
			{Index: 1, Value: "m", Text: "Medium"},
			{Index: 2, Value: "l", Text: "Large", Disabled: true},
		},
	})

	res, err := h.run(t, ToolSelect, map[string]any{"snapshotId": "snap_a", "snapId": "2", "index": 1})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "Successfully selected option in element [2]:\n  Tag: <select>\n  Name: size\n  ID: size\n")
	assert.Contains(t, res.Result, "\nSelection:\n  Method: index\n  Selected: \"Medium\" (value=\"m\", index=1)\n")
	assert.Contains(t, res.Result, "  Previous: \"Small\" (value=\"s\", index=0)\n")
	assert.Contains(t, res.Result, "\nDropdown has 3 total options:\n"+
		"  [0] \"Small\" (value=\"s\")\n"+
		"→ [1] \"Medium\" (value=\"m\")\n"+
		"  [2] \"Large\" (value=\"l\") [DISABLED]\n")
	assert.Equal(t, 1.0, h.backend.page.args[dom.SelectScript.Name]["index"])
}

func TestSelectTool_InvalidModes(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, sizeSelect)

	_, err := h.run(t, ToolSelect, map[string]any{"snapshotId": "snap_a", "snapId": "2"})
	assert.ErrorIs(t, err, dom.ErrInvalidSelection)

	_, err = h.run(t, ToolSelect, map[string]any{"snapshotId": "snap_a", "snapId": "2", "value": "m", "index": 1})
	assert.ErrorIs(t, err, dom.ErrInvalidSelection)

	_, err = h.run(t, ToolSelect, map[string]any{"snapshotId": "snap_a", "snapId": "2", "index": 1.5})
	assert.ErrorIs(t, err, ErrInvalidArgType)

	assert.Zero(t, h.backend.page.calls)
}

func TestNavigateTool(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, ToolNavigate, map[string]any{"url": "https://shop.test/cart", "waitUntil": "domcontentloaded"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.test/cart"}, h.backend.navigated)
	assert.Contains(t, res.Result, "Successfully navigated to: https://shop.test/cart\n"+
		"Final URL: https://shop.test/cart\nTab ID: tab-1\nWait strategy: domcontentloaded\n")
}

func TestNavigateTool_RejectsBadInput(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, ToolNavigate, map[string]any{"url": "ftp://shop.test/"})
	assert.ErrorIs(t, err, ErrInvalidArgType)
	assert.Equal(t, `Error: Invalid URL "ftp://shop.test/". Provide an absolute http:// or https:// URL.`, res.Result)

	_, err = h.run(t, ToolNavigate, map[string]any{"url": "shop.test"})
	assert.ErrorIs(t, err, ErrInvalidArgType)

	_, err = h.run(t, ToolNavigate, map[string]any{"url": "https://shop.test/", "waitUntil": "idle"})
	assert.ErrorIs(t, err, ErrInvalidArgType)

	assert.Empty(t, h.backend.navigated)
}

func TestInfoTool(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, ToolInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, "Page Information\n\nTab ID: tab-1\nURL: https://shop.test/\nTitle: Shop\nReady State: complete\n\n"+
		"Viewport:\n  Dimensions: 1280x720\n  Scroll Position: (0, 120)\n\nThe page is fully loaded.", res.Result)
}

func TestTabTools(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, ToolCreateTab, map[string]any{"url": "https://shop.test/help"})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "Tab ID: tab-2\nURL: https://shop.test/help\n")
	assert.Contains(t, res.Result, `Use browser_switch_tab with tabId "tab-2"`)
	assert.Equal(t, "tab-1", h.backend.active, "new tabs are not activated")

	res, err = h.run(t, ToolListTabs, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Result, "Found 2 open tabs:\n\n1. Shop (ACTIVE)\n   Tab ID: tab-1\n   URL: https://shop.test/\n   Created: 2026-01-02T03:04:05Z")
	assert.Contains(t, res.Result, "2. Untitled\n   Tab ID: tab-2")

	res, err = h.run(t, ToolSwitchTab, map[string]any{"tabId": "tab-2"})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "Successfully switched to tab:\n\nTab ID: tab-2")
	assert.Equal(t, "tab-2", h.backend.active)

	res, err = h.run(t, ToolCloseTab, map[string]any{"tabId": "tab-2"})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "Closed Tab ID: tab-2\nURL: https://shop.test/help\n")
	assert.Contains(t, res.Result, "Remaining tabs: 1\nActive tab is now: tab-1\n")
}

func TestTabTools_Errors(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(t, ToolSwitchTab, map[string]any{"tabId": "nope"})
	assert.ErrorIs(t, err, browser.ErrTabNotFound)
	assert.Equal(t, "Error: Tab nope not found. Use browser_list_tabs to see available tabs.", res.Result)

	_, err = h.run(t, ToolCloseTab, map[string]any{"tabId": "nope"})
	assert.ErrorIs(t, err, browser.ErrTabNotFound)

	res, err = h.run(t, ToolCloseTab, map[string]any{"tabId": "tab-1"})
	assert.ErrorIs(t, err, browser.ErrLastTabProtected)
	assert.Contains(t, res.Result, "Cannot close the last remaining tab")
	assert.Len(t, h.backend.tabs, 1)

	res, err = h.run(t, ToolCreateTab, map[string]any{"url": "javascript:alert(1)"})
	assert.ErrorIs(t, err, ErrInvalidArgType)
	assert.Contains(t, res.Result, "Invalid URL")
}

func TestListTabs_Empty(t *testing.T) {
	assert.Equal(t, "No tabs are currently open in this session.", formatTabs(nil, ""))
}

func TestResolveTool(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, buyButton)
	h.backend.page.on(dom.ResolveScript, dom.ResolutionReport{
		Success: true, Strategy: dom.StrategyRoleName, Confidence: 1, CandidateCount: 1,
		Element: &dom.ElementSummary{Tag: "button", Text: "Buy", Role: sp("button"), Name: "Buy", Visible: true},
	})

	res, err := h.run(t, ToolResolve, map[string]any{"snapshotId": "snap_a", "snapId": "1", "minConfidence": 0.9})
	require.NoError(t, err)
	assert.Equal(t, "Element [1] resolves on the live page:\n"+
		"  Strategy: role-name\n  Confidence: 100%\n  Tag: <button>\n  Role: button\n  Name: \"Buy\"\n  Candidates scored: 1", res.Result)
	assert.Equal(t, 0.9, h.backend.page.args[dom.ResolveScript.Name]["minConfidence"])
}

func TestResolveTool_ReportsFailureAsText(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "snap_a", h.now, buyButton)
	h.backend.page.on(dom.ResolveScript, dom.ResolutionReport{
		Strategy: dom.StrategyNone, Error: "Best candidate scored 0.41.", CandidateCount: 12,
	})

	res, err := h.run(t, ToolResolve, map[string]any{"snapshotId": "snap_a", "snapId": "1"})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "Element [1] could not be resolved:")
	assert.Contains(t, res.Result, "Best candidate scored 0.41.")
	assert.Contains(t, res.Result, "Take a fresh snapshot")

	_, err = h.run(t, ToolResolve, map[string]any{"snapshotId": "snap_a", "snapId": "1", "minConfidence": 2})
	assert.ErrorIs(t, err, ErrInvalidArgType)
}

func TestRemapTool(t *testing.T) {
	h := newHarness(t)
	banner := dom.Element{SnapID: "0", Tag: "a", Text: "Sale", Locators: dom.LocatorBundle{
		Role: sp("link"), Name: sp("Sale"), CSS: `a[href="/sale"]`, Tag: "a", Attrs: &dom.Attrs{Href: "/sale"},
	}}
	moved := buyButton
	moved.SnapID = "2"

	h.seed(t, "snap_old", h.now.Add(-time.Minute), searchBox, buyButton)
	h.seed(t, "snap_new", h.now, banner, searchBox, moved)

	res, err := h.run(t, ToolRemapElement, map[string]any{"fromSnapshotId": "snap_old", "snapId": "1"})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "Element [1] of snap_old:\n  [1] <button role=\"button\"> \"Buy\"")
	assert.Contains(t, res.Result, "Matches element [2] of snap_new:")
	assert.Contains(t, res.Result, "  Strategy: role-name\n  Confidence: 100%")

	_, err = h.run(t, ToolRemapElement, map[string]any{"fromSnapshotId": "snap_missing", "snapId": "1"})
	assert.ErrorIs(t, err, snapshot.ErrStaleReference)

	_, err = h.run(t, ToolRemapElement, map[string]any{"fromSnapshotId": "snap_old", "snapId": "1", "toSnapshotId": "snap_missing"})
	assert.ErrorIs(t, err, snapshot.ErrStaleReference)
}

func TestDescribe(t *testing.T) {
	exhausted := &sampler.ExhaustedError{Attempts: 3, EstimatedTokens: 90000, Last: sampler.ErrTokenThreshold}
	assert.Contains(t, Describe(exhausted), "Failed to create DOM snapshot after 3 attempts")
	assert.Contains(t, Describe(exhausted), "'selector' parameter")

	assert.Contains(t, Describe(fmt.Errorf("nav: %w", browser.ErrNavigationTimeout)), "Try a longer timeout")
	assert.Contains(t, Describe(context.DeadlineExceeded), "retry it")
	assert.Contains(t, Describe(fmt.Errorf("%w: bad", dom.ErrInvalidSelector)), "Check the CSS selector syntax.")
	assert.Empty(t, Describe(nil))
}
