package dom

import (
	"context"

	"github.com/go-rod/rod/lib/js"
)

// Evaluator runs an in-page script and decodes its by-value result.
// *browser.Tab and *browser.Connection satisfy it.
type Evaluator interface {
	Evaluate(ctx context.Context, fn *js.Function, arg any, out any) error
}

// Attrs is the attribute subset captured for each element.
type Attrs struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Href        string `json:"href,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// LocatorBundle is the set of independent signals used to re-find an element.
// Every field is optional.
type LocatorBundle struct {
	FrameID  string  `json:"frameId,omitempty"`
	Role     *string `json:"role"`
	Name     *string `json:"name"`
	CSS      string  `json:"css,omitempty"`
	XPath    string  `json:"xpath,omitempty"`
	TextHash *string `json:"textHash"`
	Tag      string  `json:"tag,omitempty"`
	Attrs    *Attrs  `json:"attrs,omitempty"`
}

// RoleValue returns the role or "".
func (b LocatorBundle) RoleValue() string { return deref(b.Role) }

// NameValue returns the accessible name or "".
func (b LocatorBundle) NameValue() string { return deref(b.Name) }

// TextHashValue returns the text hash or "".
func (b LocatorBundle) TextHashValue() string { return deref(b.TextHash) }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Element is one interactive element captured at extraction time.
type Element struct {
	SnapID   string        `json:"snapId"`
	Tag      string        `json:"tag"`
	Text     string        `json:"text"`
	Locators LocatorBundle `json:"locators"`
}

// Extraction is the result of one extract pass over a frame.
type Extraction struct {
	Elements []Element `json:"elements"`
	FrameID  string    `json:"frameId"`
}

// Strategy names the resolver step that produced a match.
type Strategy string

const (
	StrategyRoleName Strategy = "role-name"
	StrategyCSS      Strategy = "css"
	StrategyXPath    Strategy = "xpath"
	StrategyFuzzy    Strategy = "fuzzy"
	StrategyNone     Strategy = "none"
)

// ElementSummary describes a resolved element.
type ElementSummary struct {
	Tag     string  `json:"tag"`
	Text    string  `json:"text"`
	Role    *string `json:"role"`
	Name    string  `json:"name"`
	Visible bool    `json:"visible"`
}

// ResolutionReport is the outcome of one resolver cascade.
type ResolutionReport struct {
	Success        bool            `json:"success"`
	Strategy       Strategy        `json:"strategy"`
	Confidence     float64         `json:"confidence"`
	Element        *ElementSummary `json:"element,omitempty"`
	Error          string          `json:"error,omitempty"`
	CandidateCount int             `json:"candidateCount,omitempty"`
}

// PageSource is the raw markup of a page or of one selected region.
type PageSource struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
	Found bool   `json:"found"`
}

// scriptError is the structured failure returned by action templates.
type scriptError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
