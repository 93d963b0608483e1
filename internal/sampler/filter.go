package sampler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// HiddenSelectors match markup that is hidden by inline style or attribute.
var HiddenSelectors = []string{
	`[style*="display: none"]`,
	`[style*="display:none"]`,
	`[style*="visibility: hidden"]`,
	`[style*="visibility:hidden"]`,
	`[hidden]`,
	`[aria-hidden="true"]`,
}

// ErrScopeNotFound is returned by SelectScope when nothing matches.
var ErrScopeNotFound = errors.New("no element matches selector")

// FilterHidden removes hidden subtrees and reports how many were removed.
func FilterHidden(html string) (string, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", 0, fmt.Errorf("parse html: %w", err)
	}
	removed := 0
	for _, sel := range HiddenSelectors {
		found := doc.Find(sel)
		removed += found.Length()
		found.Remove()
	}
	var out string
	if isDocument(html) {
		out, err = doc.Html()
	} else {
		out, err = doc.Find("body").Html()
	}
	if err != nil {
		return "", 0, fmt.Errorf("render html: %w", err)
	}
	return out, removed, nil
}

func isDocument(src string) bool {
	head := strings.ToLower(strings.TrimSpace(src))
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}

// SelectScope narrows html to the outer HTML of the first element matching css.
func SelectScope(html, css string) (string, error) {
	if _, err := cascadia.Compile(css); err != nil {
		return "", fmt.Errorf("invalid selector %q: %w", css, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	sel := doc.Find(css).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrScopeNotFound, css)
	}
	return goquery.OuterHtml(sel)
}
