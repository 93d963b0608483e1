package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrTokenThreshold means the compressor could not fit the budget.
var ErrTokenThreshold = errors.New("token threshold exceeded")

// ThresholdError reports the best size reached before giving up.
type ThresholdError struct {
	Tokens     int
	MaxTokens  int
	Iterations int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("still over token threshold after %d iterations: %d tokens > %d",
		e.Iterations, e.Tokens, e.MaxTokens)
}

func (e *ThresholdError) Unwrap() error { return ErrTokenThreshold }

// CompressResult is the output of a Compressor.
type CompressResult struct {
	HTML            string
	EstimatedTokens int
}

// Compressor shrinks html to at most maxTokens in up to maxIterations passes.
type Compressor interface {
	Compress(ctx context.Context, html string, maxTokens, maxIterations int) (CompressResult, error)
}

var noiseTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Link:     true,
	atom.Meta:     true,
}

// essentialAttrs survive the attribute pass.
var essentialAttrs = map[string]bool{
	"id":          true,
	"name":        true,
	"type":        true,
	"href":        true,
	"role":        true,
	"aria-label":  true,
	"placeholder": true,
	"value":       true,
	"alt":         true,
	"title":       true,
	"for":         true,
	"action":      true,
}

var wrapperTags = map[atom.Atom]bool{
	atom.Div:     true,
	atom.Span:    true,
	atom.Section: true,
	atom.Article: true,
	atom.Font:    true,
	atom.Center:  true,
}

// interactiveTags are never dropped as empty.
var interactiveTags = map[atom.Atom]bool{
	atom.Input:    true,
	atom.Textarea: true,
	atom.Select:   true,
	atom.Option:   true,
	atom.Button:   true,
	atom.A:        true,
	atom.Img:      true,
	atom.Form:     true,
	atom.Label:    true,
	atom.Br:       true,
}

const defaultDepthLimit = 12

// Downsampler is the default Compressor. It walks an x/net/html tree and
// applies progressively more aggressive passes until the output fits.
type Downsampler struct {
	counter TokenCounter
	logger  *zap.Logger
}

// NewDownsampler creates a downsampler. A nil counter uses EstimateTokens.
func NewDownsampler(counter TokenCounter, logger *zap.Logger) *Downsampler {
	if counter == nil {
		counter = EstimateCounter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downsampler{counter: counter, logger: logger}
}

type pass func(root *html.Node, iteration int)

func (d *Downsampler) passes() []pass {
	return []pass{
		func(root *html.Node, _ int) { stripNoise(root) },
		func(root *html.Node, _ int) { stripAttrs(root) },
		func(root *html.Node, _ int) { collapseWrappers(root) },
		func(root *html.Node, _ int) { truncateText(root, 80) },
		func(root *html.Node, i int) {
			truncateText(root, 40)
			pruneDepth(root, depthLimit(i))
		},
	}
}

// depthLimit shrinks by two for every pass after the fifth, floored at 3.
func depthLimit(iteration int) int {
	limit := defaultDepthLimit - 2*(iteration-4)
	if limit < 3 {
		limit = 3
	}
	return limit
}

// Compress implements Compressor.
func (d *Downsampler) Compress(ctx context.Context, src string, maxTokens, maxIterations int) (CompressResult, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	tokens := d.counter.Count(src)
	if tokens <= maxTokens {
		return CompressResult{HTML: src, EstimatedTokens: tokens}, nil
	}

	doc, fragment, err := parse(src)
	if err != nil {
		return CompressResult{}, err
	}

	// Passes past the last one repeat it with a tighter depth limit.
	all := d.passes()
	out := src
	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return CompressResult{}, err
		}
		p := all[len(all)-1]
		if i < len(all) {
			p = all[i]
		}
		p(doc, i)

		out, err = render(doc, fragment)
		if err != nil {
			return CompressResult{}, err
		}
		tokens = d.counter.Count(out)
		d.logger.Debug("downsample pass",
			zap.Int("iteration", i+1),
			zap.Int("tokens", tokens),
			zap.Int("max_tokens", maxTokens))
		if tokens <= maxTokens {
			return CompressResult{HTML: out, EstimatedTokens: tokens}, nil
		}
	}
	return CompressResult{}, &ThresholdError{Tokens: tokens, MaxTokens: maxTokens, Iterations: maxIterations}
}

// parse treats input with an html or doctype prologue as a document and
// anything else as a body fragment held under a synthetic root.
func parse(src string) (*html.Node, bool, error) {
	if isDocument(src) {
		doc, err := html.Parse(strings.NewReader(src))
		if err != nil {
			return nil, false, fmt.Errorf("parse html: %w", err)
		}
		return doc, false, nil
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, true, fmt.Errorf("parse html fragment: %w", err)
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, true, nil
}

func render(root *html.Node, fragment bool) (string, error) {
	var buf bytes.Buffer
	if !fragment {
		if err := html.Render(&buf, root); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
		return buf.String(), nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

func stripNoise(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode, c.Type == html.DoctypeNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && noiseTags[c.DataAtom]:
			n.RemoveChild(c)
		default:
			stripNoise(c)
		}
		c = next
	}
}

func stripAttrs(n *html.Node) {
	if n.Type == html.ElementNode {
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			if a.Namespace == "" && essentialAttrs[a.Key] {
				kept = append(kept, a)
			}
		}
		n.Attr = kept
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		stripAttrs(c)
	}
}

func isBlank(n *html.Node) bool {
	return n.Type == html.TextNode && strings.TrimSpace(n.Data) == ""
}

// collapseWrappers drops whitespace-only text, removes empty wrappers and
// replaces an attribute-less wrapper holding one element with that element.
func collapseWrappers(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isBlank(c) {
			n.RemoveChild(c)
			c = next
			continue
		}
		collapseWrappers(c)

		if c.Type == html.ElementNode && wrapperTags[c.DataAtom] && len(c.Attr) == 0 {
			switch {
			case c.FirstChild == nil:
				n.RemoveChild(c)
			case c.FirstChild == c.LastChild && c.FirstChild.Type == html.ElementNode:
				only := c.FirstChild
				c.RemoveChild(only)
				n.InsertBefore(only, c)
				n.RemoveChild(c)
			}
		} else if c.Type == html.ElementNode && c.FirstChild == nil && len(c.Attr) == 0 && !interactiveTags[c.DataAtom] {
			n.RemoveChild(c)
		}
		c = next
	}
}

func truncateText(n *html.Node, limit int) {
	if n.Type == html.TextNode {
		n.Data = truncate(strings.Join(strings.Fields(n.Data), " "), limit)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		truncateText(c, limit)
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "..."
}

// pruneDepth removes elements nested deeper than limit, keeping interactive
// descendants by hoisting them to the cut point.
func pruneDepth(root *html.Node, limit int) {
	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.ElementNode {
				if depth+1 > limit {
					for _, keep := range interactiveDescendants(c) {
						keep.Parent.RemoveChild(keep)
						n.InsertBefore(keep, c)
					}
					n.RemoveChild(c)
				} else {
					walk(c, depth+1)
				}
			}
			c = next
		}
	}
	walk(root, 0)
}

func interactiveDescendants(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Input, atom.Textarea, atom.Select, atom.Button, atom.A:
				out = append(out, c)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return out
}
