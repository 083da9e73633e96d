package rendering

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// paragraphPaths lists the paragraph-level elements, visited before spans.
var paragraphPaths = []string{"//text:p", "//text:h"}

const spanPath = "//text:span"

// flatten concatenates all descendant text of e, expanding ODF space, tab and
// line-break elements the way office suites do when copying text. Comments and
// notes anchored in e are not part of its text.
func flatten(e *etree.Element) string {
	var sb strings.Builder
	writeText(&sb, e)
	return sb.String()
}

func writeText(sb *strings.Builder, e *etree.Element) {
	for _, tok := range e.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			if isAside(t) {
				continue
			}
			if t.Space != "text" {
				writeText(sb, t)
				continue
			}
			switch t.Tag {
			case "s":
				n := 1
				if c := t.SelectAttrValue("text:c", ""); c != "" {
					if v, err := strconv.Atoi(c); err == nil && v > 0 {
						n = v
					}
				}
				sb.WriteString(strings.Repeat(" ", n))
			case "tab":
				sb.WriteByte('\t')
			case "line-break":
				sb.WriteByte('\n')
			default:
				writeText(sb, t)
			}
		}
	}
}

// isAside reports whether e is a comment or a footnote/endnote body.
func isAside(e *etree.Element) bool {
	switch {
	case e.Space == "office":
		return e.Tag == "annotation" || e.Tag == "annotation-end"
	case e.Space == "text":
		return e.Tag == "note"
	}
	return false
}

// asides returns the outermost comment and note elements below e.
func asides(e *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if isAside(c) {
			out = append(out, c)
			continue
		}
		out = append(out, asides(c)...)
	}
	return out
}

// collect returns the elements matched by paths in document order per path.
func collect(root *etree.Element, paths ...string) []*etree.Element {
	var out []*etree.Element
	for _, p := range paths {
		out = append(out, root.FindElements(p)...)
	}
	return out
}
