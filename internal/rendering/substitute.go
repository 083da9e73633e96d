package rendering

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/jonathan/specsheet/internal/logging"
)

// Report describes what a substitution did. It is diagnostic only.
type Report struct {
	Occurrences        map[string]int `json:"occurrences"`
	Total              int            `json:"total"`
	NodesRewritten     int            `json:"nodes_rewritten"`
	Unmatched          []string       `json:"unmatched"`
	UnmatchedWithValue []string       `json:"unmatched_with_value"`
	Unbound            []string       `json:"unbound"`
}

// Result is a rendered document and its report.
type Result struct {
	Document []byte
	Report   Report
}

// Option configures Substitute.
type Option func(*options)

type options struct {
	style Style
}

// WithStyle sets the style applied to substituted text.
func WithStyle(s Style) Option {
	return func(o *options) {
		o.style = s
	}
}

// Substitute loads the template at templatePath, replaces every bound marker
// and returns the new document. The template file is never modified.
//
// A missing template yields *TemplateNotFoundError. Any failure to read,
// rewrite or serialize the document is logged and returned with a nil result.
func Substitute(ctx context.Context, templatePath string, bindings *Bindings, opts ...Option) (*Result, error) {
	o := options{style: DefaultStyle()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.FromContext(ctx)

	pkg, err := loadTemplate(templatePath)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			logger.Warn().Str("template", templatePath).Msg("template not found")
		} else {
			logger.Error().Err(err).Str("template", templatePath).Msg("failed to load template")
		}
		return nil, err
	}

	report := pkg.substitute(bindings, o.style.withDefaults())

	doc, err := pkg.bytes()
	if err != nil {
		rerr := &RenderError{Message: "failed to serialize document", Cause: err}
		logger.Error().Err(rerr).Str("template", templatePath).Msg("export failed")
		return nil, rerr
	}

	event := logger.Info()
	if len(report.UnmatchedWithValue) > 0 {
		event = logger.Warn().Strs("unmatched_with_value", report.UnmatchedWithValue)
	}
	event.Str("template", templatePath).
		Int("replacements", report.Total).
		Int("nodes", report.NodesRewritten).
		Int("unmatched", len(report.Unmatched)).
		Strs("unbound", report.Unbound).
		Msg("template rendered")

	return &Result{Document: doc, Report: report}, nil
}

type edit struct {
	node *etree.Element
	text string
}

// substitute rewrites content.xml in place. All edits are planned against
// the untouched tree first and applied afterwards.
func (p *odtPackage) substitute(b *Bindings, st Style) Report {
	registerStyle(p, st)

	root := p.content.Root()
	paragraphs := collect(root, paragraphPaths...)
	spans := collect(root, spanPath)

	report := Report{Occurrences: make(map[string]int, b.Len())}
	for _, kv := range b.All() {
		report.Occurrences[kv.Token] = 0
	}
	unbound := make(map[string]bool)
	planned := make(map[*etree.Element]bool)
	var edits []edit

	for _, node := range append(paragraphs, spans...) {
		if coveredBy(node, planned) {
			continue
		}
		text := flatten(node)
		out, counts, missing := replaceMarkers(text, b)
		for _, tok := range missing {
			unbound[tok] = true
		}
		if out == text {
			continue
		}
		for tok, n := range counts {
			report.Occurrences[tok] += n
			report.Total += n
		}
		planned[node] = true
		edits = append(edits, edit{node: node, text: out})
	}

	for _, e := range edits {
		replaceContent(e.node, newStyledSpan(st.Name, e.text))
	}
	report.NodesRewritten = len(edits)

	for _, kv := range b.All() {
		if report.Occurrences[kv.Token] > 0 {
			continue
		}
		report.Unmatched = append(report.Unmatched, kv.Token)
		if kv.Value != "" {
			report.UnmatchedWithValue = append(report.UnmatchedWithValue, kv.Token)
		}
	}
	for tok := range unbound {
		report.Unbound = append(report.Unbound, tok)
	}
	sortMarkers(report.Unmatched)
	sortMarkers(report.UnmatchedWithValue)
	sortMarkers(report.Unbound)
	return report
}

// replaceMarkers substitutes bound markers in one pass, so substituted values
// are never scanned again. Unbound markers are kept verbatim and returned.
func replaceMarkers(text string, b *Bindings) (string, map[string]int, []string) {
	counts := make(map[string]int)
	var missing []string
	out := markerPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if v, ok := b.Lookup(tok); ok {
			counts[tok]++
			return v
		}
		missing = append(missing, tok)
		return tok
	})
	return out, counts, missing
}

func coveredBy(node *etree.Element, planned map[*etree.Element]bool) bool {
	for e := node; e != nil; e = e.Parent() {
		if planned[e] {
			return true
		}
	}
	return false
}

// newStyledSpan builds a text:span holding s. Runs of spaces, tabs and line
// breaks are written as ODF elements so they survive rendering.
func newStyledSpan(styleName, s string) *etree.Element {
	span := etree.NewElement("text:span")
	span.CreateAttr("text:style-name", styleName)

	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			span.CreateText(run.String())
			run.Reset()
		}
	}

	spaces := 0
	emitSpaces := func() {
		if spaces == 0 {
			return
		}
		run.WriteByte(' ')
		if spaces > 1 {
			flush()
			sp := span.CreateElement("text:s")
			if spaces > 2 {
				sp.CreateAttr("text:c", strconv.Itoa(spaces-1))
			}
		}
		spaces = 0
	}

	for _, r := range s {
		switch r {
		case ' ':
			spaces++
			continue
		case '\t':
			emitSpaces()
			flush()
			span.CreateElement("text:tab")
			continue
		case '\n':
			emitSpaces()
			flush()
			span.CreateElement("text:line-break")
			continue
		}
		emitSpaces()
		run.WriteRune(r)
	}
	emitSpaces()
	flush()
	return span
}

// replaceContent swaps all children of node for replacement. Comments and
// notes anchored in node are moved after the new span.
func replaceContent(node, replacement *etree.Element) {
	kept := asides(node)
	for _, a := range kept {
		a.Parent().RemoveChild(a)
	}
	for len(node.Child) > 0 {
		node.RemoveChildAt(len(node.Child) - 1)
	}
	node.AddChild(replacement)
	for _, a := range kept {
		node.AddChild(a)
	}
}
