// Package locator scores captured elements against a locator bundle without
// a browser. The arithmetic matches the in-page resolver so that offline
// remapping and live resolution agree.
package locator

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"browsernerd/internal/dom"
)

// MaxTextUnits caps normalized text, counted in UTF-16 code units.
const MaxTextUnits = 200

// Score weights.
const (
	WeightRole     = 0.35
	WeightName     = 0.35
	WeightAttrs    = 0.15
	WeightTextHash = 0.10
	WeightTag      = 0.05
)

// Strategy confidences for exact matches.
const (
	ConfidenceRoleName = 1.0
	ConfidenceCSS      = 0.95
	ConfidenceXPath    = 0.9
)

func isSpace(r rune) bool { return unicode.IsSpace(r) || r == '\uFEFF' }

func normalizedUnits(s string) []uint16 {
	units := utf16.Encode([]rune(strings.Join(strings.FieldsFunc(s, isSpace), " ")))
	if len(units) > MaxTextUnits {
		units = units[:MaxTextUnits]
	}
	return units
}

// NormalizeText trims, collapses whitespace runs and caps the result.
func NormalizeText(s string) string {
	return string(utf16.Decode(normalizedUnits(s)))
}

// TextHash is the 32-bit rolling hash of the normalized text in base 36.
// Empty text hashes to "".
func TextHash(s string) string {
	units := normalizedUnits(s)
	if len(units) == 0 {
		return ""
	}
	var h int32
	for _, u := range units {
		h = (h << 5) - h + int32(u)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 36)
}

var whitespace = regexp.MustCompile(`\s+`)

// NameSimilarity is 1 for identical names, 0.95 when they differ only by
// case, and the word-set Jaccard index otherwise. Either side empty gives 0.
func NameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	al, bl := strings.ToLower(a), strings.ToLower(b)
	if al == bl {
		return 0.95
	}

	aw := wordSet(al)
	bw := wordSet(bl)
	inter := 0
	for w := range aw {
		if bw[w] {
			inter++
		}
	}
	union := len(aw)
	for w := range bw {
		if !aw[w] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range whitespace.Split(s, -1) {
		set[w] = true
	}
	return set
}

// Candidate is an element as seen by the scorer.
type Candidate struct {
	Tag      string
	Role     string
	Name     string
	TextHash string
	CSS      string
	XPath    string
	Attrs    dom.Attrs
}

// FromElement builds a candidate from a captured element.
func FromElement(el dom.Element) Candidate {
	c := Candidate{
		Tag:      el.Tag,
		Role:     el.Locators.RoleValue(),
		Name:     el.Locators.NameValue(),
		TextHash: el.Locators.TextHashValue(),
		CSS:      el.Locators.CSS,
		XPath:    el.Locators.XPath,
	}
	if c.Tag == "" {
		c.Tag = el.Locators.Tag
	}
	if el.Locators.Attrs != nil {
		c.Attrs = *el.Locators.Attrs
	}
	return c
}

// Score rates how well c matches b, in [0, 1].
func Score(b dom.LocatorBundle, c Candidate) float64 {
	total := 0.0

	if role := b.RoleValue(); role != "" && c.Role == role {
		total += WeightRole
	}

	if name := b.NameValue(); name != "" {
		sim := NameSimilarity(name, c.Name)
		if sim >= 0.9 {
			total += WeightName
		} else {
			total += WeightName * sim
		}
	} else if c.Name == "" {
		total += WeightName
	}

	total += WeightAttrs * attrRatio(b.Attrs, c.Attrs)

	if h := b.TextHashValue(); h != "" && c.TextHash == h {
		total += WeightTextHash
	}
	if b.Tag != "" && strings.EqualFold(b.Tag, c.Tag) {
		total += WeightTag
	}

	return math.Min(1, math.Max(0, total))
}

// attrRatio is the fraction of id, name, type and href given in want that
// have the same value in got. Nothing given counts as a full match.
func attrRatio(want *dom.Attrs, got dom.Attrs) float64 {
	if want == nil {
		return 1
	}
	pairs := [][2]string{
		{want.ID, got.ID},
		{want.Name, got.Name},
		{want.Type, got.Type},
		{want.Href, got.Href},
	}
	considered, matched := 0, 0
	for _, p := range pairs {
		if p[0] == "" {
			continue
		}
		considered++
		if p[0] == p[1] {
			matched++
		}
	}
	if considered == 0 {
		return 1
	}
	return float64(matched) / float64(considered)
}

// Match is the outcome of Resolve.
type Match struct {
	Index          int
	Strategy       dom.Strategy
	Confidence     float64
	CandidateCount int
}

// Resolve runs the resolver cascade over captured candidates: a unique
// role and name, the css matches, an xpath, then the best score. Every
// step must reach minConfidence to be accepted. Index is -1 when nothing
// qualifies.
func Resolve(b dom.LocatorBundle, cands []Candidate, minConfidence float64) Match {
	if role, name := b.RoleValue(), b.NameValue(); role != "" && name != "" && ConfidenceRoleName >= minConfidence {
		if i, n := unique(cands, func(c Candidate) bool {
			return c.Role == role && strings.EqualFold(c.Name, name)
		}); n == 1 {
			return Match{Index: i, Strategy: dom.StrategyRoleName, Confidence: ConfidenceRoleName}
		}
	}

	if b.CSS != "" {
		var matches []int
		for i, c := range cands {
			if c.CSS == b.CSS {
				matches = append(matches, i)
			}
		}
		switch {
		case len(matches) == 1 && ConfidenceCSS >= minConfidence:
			return Match{Index: matches[0], Strategy: dom.StrategyCSS, Confidence: ConfidenceCSS}
		case len(matches) > 1:
			if i, s := top(b, cands, matches); s >= minConfidence {
				return Match{Index: i, Strategy: dom.StrategyCSS, Confidence: s, CandidateCount: len(matches)}
			}
		}
	}

	if b.XPath != "" && ConfidenceXPath >= minConfidence {
		for i, c := range cands {
			if c.XPath == b.XPath {
				return Match{Index: i, Strategy: dom.StrategyXPath, Confidence: ConfidenceXPath}
			}
		}
	}

	var scored []int
	for i, c := range cands {
		if Score(b, c) > 0 {
			scored = append(scored, i)
		}
	}
	if i, s := top(b, cands, scored); i >= 0 && s >= minConfidence {
		return Match{Index: i, Strategy: dom.StrategyFuzzy, Confidence: s, CandidateCount: len(scored)}
	}
	return Match{Index: -1, Strategy: dom.StrategyNone, CandidateCount: len(scored)}
}

// top returns the highest scoring of idx, the earliest on ties.
func top(b dom.LocatorBundle, cands []Candidate, idx []int) (int, float64) {
	best, bestScore := -1, 0.0
	for _, i := range idx {
		if s := Score(b, cands[i]); best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}

func unique(cands []Candidate, pred func(Candidate) bool) (int, int) {
	idx, n := -1, 0
	for i, c := range cands {
		if pred(c) {
			if n == 0 {
				idx = i
			}
			n++
		}
	}
	return idx, n
}
