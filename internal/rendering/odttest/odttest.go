// Package odttest builds small OpenDocument text packages for tests.
package odttest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

const mimeType = "application/vnd.oasis.opendocument.text"

const namespaces = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
	`xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" ` +
	`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
	`xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0" ` +
	`xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"`

const manifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
 <manifest:file-entry manifest:full-path="/" manifest:media-type="application/vnd.oasis.opendocument.text"/>
 <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
 <manifest:file-entry manifest:full-path="styles.xml" manifest:media-type="text/xml"/>
</manifest:manifest>`

// Paragraphs returns one text:p element per line.
func Paragraphs(lines ...string) string {
	var b bytes.Buffer
	for _, l := range lines {
		b.WriteString(`<text:p>`)
		b.WriteString(l)
		b.WriteString(`</text:p>`)
	}
	return b.String()
}

// Build returns an ODT package whose office:text holds body.
func Build(t testing.TB, body string) []byte {
	t.Helper()

	content := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-content ` + namespaces + ` office:version="1.2">` +
		`<office:font-face-decls/><office:automatic-styles/>` +
		`<office:body><office:text>` + body + `</office:text></office:body>` +
		`</office:document-content>`
	styles := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-styles ` + namespaces + ` office:version="1.2">` +
		`<office:font-face-decls/><office:styles/><office:automatic-styles/>` +
		`</office:document-styles>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("odttest: %v", err)
	}
	_, _ = w.Write([]byte(mimeType))

	for _, e := range []struct{ name, data string }{
		{"content.xml", content},
		{"styles.xml", styles},
		{"META-INF/manifest.xml", manifest},
	} {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("odttest: %v", err)
		}
		_, _ = w.Write([]byte(e.data))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("odttest: %v", err)
	}
	return buf.Bytes()
}

// Write stores a template named name under dir and returns its path.
func Write(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(t, body), 0o644); err != nil {
		t.Fatalf("odttest: %v", err)
	}
	return path
}

// Text returns the concatenated character data of content.xml, for assertions.
func Text(t testing.TB, doc []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		t.Fatalf("odttest: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != "content.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("odttest: %v", err)
		}
		defer rc.Close()
		var raw bytes.Buffer
		_, _ = raw.ReadFrom(rc)
		return stripTags(raw.String())
	}
	t.Fatalf("odttest: content.xml missing")
	return ""
}

func stripTags(s string) string {
	var b bytes.Buffer
	in := false
	for _, r := range s {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			b.WriteRune(r)
		}
	}
	return b.String()
}
