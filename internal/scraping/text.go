package scraping

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"

	"github.com/jonathan/specsheet/internal/types"
)

// normSpace collapses runs of whitespace, including non-breaking spaces.
func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cellText returns the visible text of a cell. Line breaks become spaces.
func cellText(s *goquery.Selection) string {
	s = s.Clone()
	s.Find("script, style").Remove()
	s.Find("br").ReplaceWithHtml(" ")
	return normSpace(s.Text())
}

// label normalizes a field label: whitespace collapsed, trailing colon removed.
func label(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(normSpace(s), ":"))
}

// containsFold reports whether s contains sub, ignoring case.
func containsFold(s, sub string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(s), fold.String(sub))
}

// appendField adds a field when its label is non-empty.
func appendField(fields []types.RawField, l, v string) []types.RawField {
	l = label(l)
	if l == "" {
		return fields
	}
	return append(fields, types.RawField{Label: l, Value: v})
}
