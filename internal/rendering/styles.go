package rendering

import (
	"github.com/beevik/etree"
)

// Style is the text style applied to substituted text.
type Style struct {
	Name       string `json:"name" mapstructure:"name"`
	FontFamily string `json:"font_family" mapstructure:"font_family"`
	FontSize   string `json:"font_size" mapstructure:"font_size"`
}

// DefaultStyle returns the replacement style used when none is configured.
func DefaultStyle() Style {
	return Style{
		Name:       "replacementStyle",
		FontFamily: "Liberation Serif",
		FontSize:   "8pt",
	}
}

func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.Name == "" {
		s.Name = d.Name
	}
	if s.FontFamily == "" {
		s.FontFamily = d.FontFamily
	}
	if s.FontSize == "" {
		s.FontSize = d.FontSize
	}
	return s
}

var odfNamespaces = map[string]string{
	"office": "urn:oasis:names:tc:opendocument:xmlns:office:1.0",
	"style":  "urn:oasis:names:tc:opendocument:xmlns:style:1.0",
	"text":   "urn:oasis:names:tc:opendocument:xmlns:text:1.0",
	"fo":     "urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0",
	"svg":    "urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0",
}

// registerStyle adds st once to the common styles in styles.xml, or to the
// automatic styles of content.xml when the package has no styles part.
func registerStyle(p *odtPackage, st Style) {
	var root, registry *etree.Element
	if p.styles != nil && p.styles.Root() != nil {
		root = p.styles.Root()
		registry = ensureChild(root, "office:styles", "office:automatic-styles", "office:master-styles")
	} else {
		root = p.content.Root()
		registry = ensureChild(root, "office:automatic-styles", "office:body")
	}

	for _, prefix := range []string{"office", "style", "text", "fo", "svg"} {
		ensureNamespace(root, prefix)
	}

	declareFont(root, st.FontFamily)

	for _, existing := range registry.SelectElements("style:style") {
		if existing.SelectAttrValue("style:name", "") == st.Name {
			return
		}
	}

	el := etree.NewElement("style:style")
	el.CreateAttr("style:name", st.Name)
	el.CreateAttr("style:family", "text")
	props := el.CreateElement("style:text-properties")
	props.CreateAttr("style:font-name", st.FontFamily)
	props.CreateAttr("fo:font-family", st.FontFamily)
	props.CreateAttr("fo:font-size", st.FontSize)
	registry.AddChild(el)
}

// declareFont adds a font-face declaration so style:font-name resolves.
func declareFont(root *etree.Element, family string) {
	decls := ensureChild(root, "office:font-face-decls",
		"office:styles", "office:automatic-styles", "office:master-styles", "office:body")
	for _, face := range decls.SelectElements("style:font-face") {
		if face.SelectAttrValue("style:name", "") == family {
			return
		}
	}
	face := decls.CreateElement("style:font-face")
	face.CreateAttr("style:name", family)
	face.CreateAttr("svg:font-family", "'"+family+"'")
	face.CreateAttr("style:font-family-generic", "roman")
	face.CreateAttr("style:font-pitch", "variable")
}

// ensureChild returns root's child named tag, creating it before the first
// sibling named in before (or at the end) when missing.
func ensureChild(root *etree.Element, tag string, before ...string) *etree.Element {
	if el := root.SelectElement(tag); el != nil {
		return el
	}
	el := etree.NewElement(tag)
	for i, tok := range root.Child {
		child, ok := tok.(*etree.Element)
		if !ok {
			continue
		}
		for _, b := range before {
			if child.FullTag() == b {
				root.InsertChildAt(i, el)
				return el
			}
		}
	}
	root.AddChild(el)
	return el
}

func ensureNamespace(root *etree.Element, prefix string) {
	key := "xmlns:" + prefix
	if root.SelectAttr(key) == nil {
		root.CreateAttr(key, odfNamespaces[prefix])
	}
}
