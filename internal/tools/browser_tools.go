package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"browsernerd/internal/browser"
	"browsernerd/internal/dom"
	"browsernerd/internal/sampler"
	"browsernerd/internal/snapshot"
)

// Tool names.
const (
	ToolSnapshot     = "browser_get_dom_snapshot"
	ToolClick        = "browser_click"
	ToolType         = "browser_type"
	ToolSelect       = "browser_select"
	ToolNavigate     = "browser_navigate"
	ToolInfo         = "browser_info"
	ToolListTabs     = "browser_list_tabs"
	ToolCreateTab    = "browser_create_tab"
	ToolSwitchTab    = "browser_switch_tab"
	ToolCloseTab     = "browser_close_tab"
	ToolResolve      = "browser_resolve"
	ToolRemapElement = "browser_remap_element"
)

// DefaultClickWait is how long a click waits when navigation is expected.
const DefaultClickWait = time.Second

// Deps are the collaborators the browser tools drive. Backend and Store are
// required; the rest default.
type Deps struct {
	Backend   Backend
	Store     snapshot.Store
	Extractor *dom.Extractor
	Sampler   *sampler.Sampler
	Resolver  *dom.Resolver
	Actions   *dom.Actions

	SamplerOptions sampler.Options
	MaxAttempts    int
	MinConfidence  float64

	Logger *zap.Logger
	Now    func() time.Time
}

type browserTools struct {
	Deps
}

// NewBrowserTools returns a registry holding every browser tool.
func NewBrowserTools(deps Deps) (*Registry, error) {
	if deps.Backend == nil {
		return nil, errors.New("browser tools: backend required")
	}
	if deps.Store == nil {
		return nil, errors.New("browser tools: snapshot store required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MinConfidence <= 0 {
		deps.MinConfidence = 0.75
	}
	if deps.Extractor == nil {
		deps.Extractor = dom.NewExtractor(deps.Logger)
	}
	if deps.Sampler == nil {
		deps.Sampler = sampler.New(nil, deps.Logger)
	}
	if deps.Resolver == nil {
		deps.Resolver = dom.NewResolver(deps.MinConfidence, deps.Logger)
	}
	if deps.Actions == nil {
		deps.Actions = dom.NewActions(deps.MinConfidence, deps.Logger)
	}
	if deps.SamplerOptions.MaxIterations == 0 {
		deps.SamplerOptions.MaxIterations = sampler.DefaultMaxIterations
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = sampler.DefaultMaxAttempts
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	bt := &browserTools{Deps: deps}
	reg := NewRegistry(deps.Logger)
	for _, t := range bt.tools() {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

var tabIDProp = Property{Type: "string", Description: "Tab to act on. Defaults to the active tab."}

func (bt *browserTools) tools() []*Tool {
	refProps := func(extra map[string]Property) map[string]Property {
		props := map[string]Property{
			"snapshotId": {Type: "string", Description: "Snapshot id from browser_get_dom_snapshot."},
			"snapId":     {Type: "string", Description: "Element id within that snapshot."},
			"tabId":      tabIDProp,
		}
		for k, v := range extra {
			props[k] = v
		}
		return props
	}

	return []*Tool{
		{
			Name: ToolSnapshot,
			Description: "Capture a compressed snapshot of the current page and list its interactive elements. " +
				"Call this before acting; click, type and select refer to elements by snapshotId and snapId.",
			Category: CategoryObserve,
			Priority: 90,
			Execute:  bt.snapshot,
			Schema: ToolSchema{Properties: map[string]Property{
				"selector":     {Type: "string", Description: "CSS selector narrowing the captured HTML."},
				"maxTokens":     {Type: "integer", Description: "Token budget for the compressed HTML. Picked from page size when omitted."},
				"maxIterations": {Type: "integer", Description: "Compression passes per attempt before giving up.", Default: sampler.DefaultMaxIterations},
				"filterHidden":  {Type: "boolean", Description: "Strip hidden elements before compression.", Default: true},
				"tabId":         tabIDProp,
			}},
		},
		{
			Name:        ToolClick,
			Description: "Click an element from a snapshot. The element is re-located on the live page first.",
			Category:    CategoryAct,
			Priority:    80,
			Execute:     bt.click,
			Schema: ToolSchema{
				Required: []string{"snapshotId", "snapId"},
				Properties: refProps(map[string]Property{
					"waitForNavigation": {Type: "boolean", Description: "Wait after the click for a page load.", Default: false},
					"waitTime":          {Type: "integer", Description: "Milliseconds to wait after the click.", Default: 1000},
				}),
			},
		},
		{
			Name:        ToolType,
			Description: "Type text into an input or textarea from a snapshot. With clear=false the text is appended.",
			Category:    CategoryAct,
			Priority:    80,
			Execute:     bt.typeText,
			Schema: ToolSchema{
				Required: []string{"snapshotId", "snapId", "text"},
				Properties: refProps(map[string]Property{
					"text":       {Type: "string", Description: "Text to type."},
					"clear":      {Type: "boolean", Description: "Empty the field first.", Default: true},
					"pressEnter": {Type: "boolean", Description: "Press Enter and submit the form afterwards.", Default: false},
					"delay":      {Type: "integer", Description: "Milliseconds between characters.", Default: 0},
				}),
			},
		},
		{
			Name:        ToolSelect,
			Description: "Choose an option of a <select> from a snapshot by exactly one of value, text or index.",
			Category:    CategoryAct,
			Priority:    80,
			Execute:     bt.selectOption,
			Schema: ToolSchema{
				Required: []string{"snapshotId", "snapId"},
				Properties: refProps(map[string]Property{
					"value": {Type: "string", Description: "Option value attribute."},
					"text":  {Type: "string", Description: "Visible option text."},
					"index": {Type: "integer", Description: "Zero-based option index."},
				}),
			},
		},
		{
			Name:        ToolNavigate,
			Description: "Load a URL in a tab and wait for it.",
			Category:    CategoryNavigate,
			Priority:    70,
			Execute:     bt.navigate,
			Schema: ToolSchema{
				Required: []string{"url"},
				Properties: map[string]Property{
					"url":       {Type: "string", Description: "Absolute http or https URL."},
					"waitUntil": {Type: "string", Description: "Lifecycle point to wait for.", Default: "load", Enum: []any{"load", "domcontentloaded", "networkidle"}},
					"timeout":   {Type: "integer", Description: "Milliseconds before giving up.", Default: 30000},
					"tabId":     tabIDProp,
				},
			},
		},
		{
			Name:        ToolInfo,
			Description: "Report the URL, title, ready state, viewport and scroll position of a tab.",
			Category:    CategoryObserve,
			Priority:    60,
			Execute:     bt.info,
			Schema:      ToolSchema{Properties: map[string]Property{"tabId": tabIDProp}},
		},
		{
			Name:        ToolListTabs,
			Description: "List the open tabs of this session's browser and mark the active one.",
			Category:    CategoryTabs,
			Execute:     bt.listTabs,
		},
		{
			Name:        ToolCreateTab,
			Description: "Open a new tab. It does not become the active tab.",
			Category:    CategoryTabs,
			Execute:     bt.createTab,
			Schema: ToolSchema{Properties: map[string]Property{
				"url": {Type: "string", Description: "URL to load in the new tab."},
			}},
		},
		{
			Name:        ToolSwitchTab,
			Description: "Make a tab the active tab of this session.",
			Category:    CategoryTabs,
			Execute:     bt.switchTab,
			Schema: ToolSchema{
				Required:   []string{"tabId"},
				Properties: map[string]Property{"tabId": {Type: "string", Description: "Tab to activate."}},
			},
		},
		{
			Name:        ToolCloseTab,
			Description: "Close a tab. The last tab of a browser cannot be closed.",
			Category:    CategoryTabs,
			Execute:     bt.closeTab,
			Schema: ToolSchema{
				Required:   []string{"tabId"},
				Properties: map[string]Property{"tabId": {Type: "string", Description: "Tab to close."}},
			},
		},
		{
			Name:        ToolResolve,
			Description: "Check whether a snapshot element can still be located on the live page, without acting on it.",
			Category:    CategoryObserve,
			Priority:    40,
			Execute:     bt.resolve,
			Schema: ToolSchema{
				Required: []string{"snapshotId", "snapId"},
				Properties: refProps(map[string]Property{
					"minConfidence": {Type: "number", Description: "Threshold between 0 and 1.", Default: 0.75},
				}),
			},
		},
		{
			Name:        ToolRemapElement,
			Description: "Find the element of a newer snapshot that corresponds to an element of an older one. Runs offline.",
			Category:    CategoryObserve,
			Priority:    30,
			Execute:     bt.remap,
			Schema: ToolSchema{
				Required: []string{"fromSnapshotId", "snapId"},
				Properties: map[string]Property{
					"fromSnapshotId": {Type: "string", Description: "Snapshot the element comes from."},
					"snapId":         {Type: "string", Description: "Element id within fromSnapshotId."},
					"toSnapshotId":   {Type: "string", Description: "Snapshot to search. Defaults to the latest."},
					"minConfidence":  {Type: "number", Description: "Threshold between 0 and 1.", Default: 0.75},
				},
			},
		},
	}
}

func (bt *browserTools) page(ctx context.Context, tabID string) (*Page, error) {
	p, err := bt.Backend.Page(ctx, SessionID(ctx), tabID)
	if err != nil {
		return nil, tabError(tabID, err)
	}
	return p, nil
}

func tabError(tabID string, err error) error {
	if tabID != "" && errors.Is(err, browser.ErrTabNotFound) {
		return guided(err, "Tab %s not found. Use browser_list_tabs to see available tabs.", tabID)
	}
	return err
}

func (bt *browserTools) element(ctx context.Context, snapshotID, snapID string) (*dom.Element, error) {
	el, err := bt.Store.GetElement(ctx, SessionID(ctx), snapshotID, snapID)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, guided(snapshot.Stale(snapshotID, snapID),
			"Element not found in snapshot. Snapshot ID: %s, Element ID: %s. "+
				"Make sure you're using the correct IDs from browser_get_dom_snapshot output. "+
				"Only the %d most recent snapshots are kept; take a new snapshot if this one has expired.",
			snapshotID, snapID, snapshot.DefaultMaxPerSession)
	}
	return el, nil
}

func actionError(snapID string, err error) error {
	var resErr *dom.ResolutionError
	if !errors.As(err, &resErr) {
		return err
	}
	msg := resErr.Report.Error
	if msg == "" {
		msg = "The page may have changed significantly since the snapshot was taken."
	}
	return guided(err, "Failed to resolve element [%s]. %s\nTry calling browser_get_dom_snapshot again to get a fresh snapshot.", snapID, msg)
}

func (bt *browserTools) snapshot(ctx context.Context, args map[string]any) (string, error) {
	sid := SessionID(ctx)
	selector := strings.TrimSpace(stringArg(args, "selector"))

	p, err := bt.page(ctx, stringArg(args, "tabId"))
	if err != nil {
		return "", err
	}
	src, err := dom.Capture(ctx, p.Eval, selector)
	if err != nil {
		return "", err
	}
	if selector != "" && !src.Found {
		return "", guided(nil, "No element matches selector %q on %s. Check the selector, or omit it to snapshot the whole page.", selector, src.URL)
	}
	ext, err := bt.Extractor.Extract(ctx, p.Eval, dom.DefaultFrameID)
	if err != nil {
		return "", err
	}

	opts := bt.SamplerOptions
	opts.MaxTokens = intArg(args, "maxTokens", opts.MaxTokens)
	opts.MaxIterations = intArg(args, "maxIterations", opts.MaxIterations)
	opts.FilterHidden = boolArg(args, "filterHidden", opts.FilterHidden)
	res, err := bt.Sampler.SampleWithRetry(ctx, src.HTML, ext.Elements, opts, bt.MaxAttempts)
	if err != nil {
		return "", err
	}

	now := bt.Now()
	snap := &snapshot.Snapshot{
		ID:        snapshot.NewID(now),
		SessionID: sid,
		URL:       src.URL,
		Title:     src.Title,
		FrameID:   ext.FrameID,
		CreatedAt: now,
		HTML:      res.HTML,
		Elements:  res.Elements,
		Meta: snapshot.Meta{
			TokenCount:       res.TokenCount,
			ElementCount:     res.ElementCount,
			ReductionPercent: res.ReductionPercent,
		},
	}
	if err := bt.Store.Store(ctx, snap); err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}

	bt.Logger.Info("snapshot taken",
		zap.String("session", sid),
		zap.String("snapshot_id", snap.ID),
		zap.Int("elements", snap.Meta.ElementCount),
		zap.Int("tokens", snap.Meta.TokenCount),
		zap.Int("attempts", res.Attempts))
	return FormatSnapshot(snap), nil
}

func (bt *browserTools) click(ctx context.Context, args map[string]any) (string, error) {
	snapshotID, snapID := stringArg(args, "snapshotId"), stringArg(args, "snapId")
	el, err := bt.element(ctx, snapshotID, snapID)
	if err != nil {
		return "", err
	}
	p, err := bt.page(ctx, stringArg(args, "tabId"))
	if err != nil {
		return "", err
	}

	navigation := boolArg(args, "waitForNavigation", false)
	var wait time.Duration
	if _, set := args["waitTime"]; set || navigation {
		wait = time.Duration(intArg(args, "waitTime", int(DefaultClickWait/time.Millisecond))) * time.Millisecond
	}

	res, err := bt.Actions.Click(ctx, p.Eval, el.Locators, dom.ClickOptions{MinConfidence: bt.MinConfidence, WaitAfter: wait})
	if err != nil {
		return "", actionError(snapID, err)
	}
	return formatClick(snapID, res, wait, navigation), nil
}

func (bt *browserTools) typeText(ctx context.Context, args map[string]any) (string, error) {
	snapshotID, snapID := stringArg(args, "snapshotId"), stringArg(args, "snapId")
	el, err := bt.element(ctx, snapshotID, snapID)
	if err != nil {
		return "", err
	}
	p, err := bt.page(ctx, stringArg(args, "tabId"))
	if err != nil {
		return "", err
	}

	opts := dom.TypeOptions{
		Text:          stringArg(args, "text"),
		Clear:         optBool(args, "clear"),
		PressEnter:    boolArg(args, "pressEnter", false),
		Delay:         time.Duration(intArg(args, "delay", 0)) * time.Millisecond,
		MinConfidence: bt.MinConfidence,
	}
	res, err := bt.Actions.Type(ctx, p.Eval, el.Locators, opts)
	if err != nil {
		return "", actionError(snapID, err)
	}
	return formatType(snapID, res, opts.ClearValue(), opts.Delay), nil
}

func (bt *browserTools) selectOption(ctx context.Context, args map[string]any) (string, error) {
	snapshotID, snapID := stringArg(args, "snapshotId"), stringArg(args, "snapId")
	index, err := optInt(args, "index")
	if err != nil {
		return "", err
	}
	el, err := bt.element(ctx, snapshotID, snapID)
	if err != nil {
		return "", err
	}
	p, err := bt.page(ctx, stringArg(args, "tabId"))
	if err != nil {
		return "", err
	}

	res, err := bt.Actions.Select(ctx, p.Eval, el.Locators, dom.SelectOptions{
		Value:         optString(args, "value"),
		Text:          optString(args, "text"),
		Index:         index,
		MinConfidence: bt.MinConfidence,
	})
	if err != nil {
		return "", actionError(snapID, err)
	}
	return formatSelect(snapID, res), nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return guided(ErrInvalidArgType, "Invalid URL %q. Provide an absolute http:// or https:// URL.", raw)
	}
	return nil
}

func (bt *browserTools) navigate(ctx context.Context, args map[string]any) (string, error) {
	target := strings.TrimSpace(stringArg(args, "url"))
	if err := checkURL(target); err != nil {
		return "", err
	}
	waitUntil, err := browser.ParseWaitUntil(stringArg(args, "waitUntil"))
	if err != nil {
		return "", guided(ErrInvalidArgType, "%s.", err)
	}
	timeout := time.Duration(intArg(args, "timeout", 0)) * time.Millisecond

	p, err := bt.page(ctx, stringArg(args, "tabId"))
	if err != nil {
		return "", err
	}
	info, err := bt.Backend.Navigate(ctx, SessionID(ctx), p.TabID, target, waitUntil, timeout)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully navigated to: %s\nFinal URL: %s\nTab ID: %s\nWait strategy: %s\n\n"+
		"The page has loaded and is ready for interaction. "+
		"Take a snapshot with browser_get_dom_snapshot before clicking or typing.",
		target, info.URL, p.TabID, waitUntil), nil
}

func (bt *browserTools) info(ctx context.Context, args map[string]any) (string, error) {
	p, err := bt.page(ctx, stringArg(args, "tabId"))
	if err != nil {
		return "", err
	}
	info, err := bt.Backend.Info(ctx, SessionID(ctx), p.TabID)
	if err != nil {
		return "", err
	}
	return formatInfo(p.TabID, info), nil
}

func (bt *browserTools) listTabs(ctx context.Context, _ map[string]any) (string, error) {
	tabs, active, err := bt.Backend.ListTabs(ctx, SessionID(ctx))
	if err != nil {
		return "", err
	}
	return formatTabs(tabs, active), nil
}

func (bt *browserTools) createTab(ctx context.Context, args map[string]any) (string, error) {
	target := strings.TrimSpace(stringArg(args, "url"))
	if target != "" {
		if err := checkURL(target); err != nil {
			return "", err
		}
	}
	tab, err := bt.Backend.CreateTab(ctx, SessionID(ctx), target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully created new tab:\n\nTab ID: %s\nURL: %s\nTitle: %s\n\n"+
		"The new tab has been created but is not the active tab. "+
		"Use browser_switch_tab with tabId %q to make it the active tab, or use browser_list_tabs to see all tabs.",
		tab.ID, tab.URL, tab.Title, tab.ID), nil
}

func (bt *browserTools) switchTab(ctx context.Context, args map[string]any) (string, error) {
	tabID := stringArg(args, "tabId")
	tab, err := bt.Backend.SwitchTab(ctx, SessionID(ctx), tabID)
	if err != nil {
		return "", tabError(tabID, err)
	}
	return fmt.Sprintf("Successfully switched to tab:\n\nTab ID: %s\nURL: %s\nTitle: %s\n\n"+
		"This tab is now the active tab. All browser operations (navigate, info, snapshot) "+
		"will target this tab by default unless a different tabId is specified.",
		tab.ID, tab.URL, tab.Title), nil
}

func (bt *browserTools) closeTab(ctx context.Context, args map[string]any) (string, error) {
	sid := SessionID(ctx)
	tabID := stringArg(args, "tabId")

	tabs, _, err := bt.Backend.ListTabs(ctx, sid)
	if err != nil {
		return "", err
	}
	var closing *browser.Tab
	for _, t := range tabs {
		if t.ID == tabID {
			closing = t
			break
		}
	}
	if closing == nil {
		return "", tabError(tabID, fmt.Errorf("%w: %s", browser.ErrTabNotFound, tabID))
	}

	if err := bt.Backend.CloseTab(ctx, sid, tabID); err != nil {
		return "", tabError(tabID, err)
	}
	remaining, active, err := bt.Backend.ListTabs(ctx, sid)
	if err != nil {
		return "", err
	}
	if active == "" {
		active = "none"
	}
	return fmt.Sprintf("Successfully closed tab:\n\nClosed Tab ID: %s\nURL: %s\nTitle: %s\n\n"+
		"Remaining tabs: %d\nActive tab is now: %s\n\nUse browser_list_tabs to see all remaining tabs.",
		closing.ID, closing.URL, closing.Title, len(remaining), active), nil
}

func (bt *browserTools) minConfidence(args map[string]any) (float64, error) {
	v, set := args["minConfidence"]
	if !set || v == nil {
		return bt.MinConfidence, nil
	}
	f, _ := toFloat(v)
	if f <= 0 || f > 1 {
		return 0, fmt.Errorf("%w: minConfidence must be in (0, 1]", ErrInvalidArgType)
	}
	return f, nil
}

func (bt *browserTools) resolve(ctx context.Context, args map[string]any) (string, error) {
	snapshotID, snapID := stringArg(args, "snapshotId"), stringArg(args, "snapId")
	minConf, err := bt.minConfidence(args)
	if err != nil {
		return "", err
	}
	el, err := bt.element(ctx, snapshotID, snapID)
	if err != nil {
		return "", err
	}
	p, err := bt.page(ctx, stringArg(args, "tabId"))
	if err != nil {
		return "", err
	}
	report, err := bt.Resolver.Resolve(ctx, p.Eval, el.Locators, minConf)
	if err != nil {
		return "", err
	}
	return formatReport(snapID, report), nil
}

func (bt *browserTools) remap(ctx context.Context, args map[string]any) (string, error) {
	sid := SessionID(ctx)
	fromID, snapID, toID := stringArg(args, "fromSnapshotId"), stringArg(args, "snapId"), stringArg(args, "toSnapshotId")
	minConf, err := bt.minConfidence(args)
	if err != nil {
		return "", err
	}

	prev, err := bt.Store.Get(ctx, sid, fromID)
	if err != nil {
		return "", err
	}
	if prev == nil {
		return "", snapshot.Stale(fromID, "")
	}

	var next *snapshot.Snapshot
	if toID == "" {
		next, err = bt.Store.Latest(ctx, sid)
	} else {
		next, err = bt.Store.Get(ctx, sid, toID)
	}
	if err != nil {
		return "", err
	}
	if next == nil {
		return "", snapshot.Stale(toID, "")
	}

	r, err := snapshot.Remap(prev, next, snapID, minConf)
	if err != nil {
		return "", err
	}
	return formatRemap(r, prev.ID, next.ID), nil
}
