package rendering

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const testNamespaces = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
	`xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" ` +
	`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
	`xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0" ` +
	`xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"`

const testManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
 <manifest:file-entry manifest:full-path="/" manifest:media-type="application/vnd.oasis.opendocument.text"/>
 <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
 <manifest:file-entry manifest:full-path="styles.xml" manifest:media-type="text/xml"/>
</manifest:manifest>`

func contentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-content ` + testNamespaces + ` office:version="1.2">` +
		`<office:font-face-decls/>` +
		`<office:automatic-styles><style:style style:name="P1" style:family="paragraph"/></office:automatic-styles>` +
		`<office:body><office:text>` + body + `</office:text></office:body>` +
		`</office:document-content>`
}

func stylesXML(extra string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-styles ` + testNamespaces + ` office:version="1.2">` +
		`<office:font-face-decls/>` +
		`<office:styles>` + extra + `</office:styles>` +
		`<office:automatic-styles/>` +
		`</office:document-styles>`
}

type entry struct {
	name string
	data string
}

// buildODT writes an ODT package made of entries (mimetype is added first).
func buildODT(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte(MimeType))
	require.NoError(t, err)

	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writeTemplate stores a template with the given body in a temp dir.
func writeTemplate(t *testing.T, body string) string {
	t.Helper()
	return writeTemplateEntries(t,
		entry{"content.xml", contentXML(body)},
		entry{"styles.xml", stylesXML("")},
		entry{"META-INF/manifest.xml", testManifest},
	)
}

func writeTemplateEntries(t *testing.T, entries ...entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.odt")
	require.NoError(t, os.WriteFile(path, buildODT(t, entries...), 0o644))
	return path
}

// readPart parses one XML entry of a rendered document.
func readPart(t *testing.T, doc []byte, name string) *etree.Document {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		x, err := readXML(f)
		require.NoError(t, err)
		return x
	}
	t.Fatalf("entry %s not found", name)
	return nil
}

// paragraphs returns the text:p elements of a rendered content.xml.
func paragraphs(t *testing.T, doc []byte) []*etree.Element {
	t.Helper()
	return readPart(t, doc, "content.xml").FindElements("//text:p")
}

func serialize(t *testing.T, e *etree.Element) string {
	t.Helper()
	d := etree.NewDocument()
	d.SetRoot(e.Copy())
	s, err := d.WriteToString()
	require.NoError(t, err)
	return s
}
