package rendering

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/beevik/etree"
)

// MimeType is the media type of OpenDocument text files.
const MimeType = "application/vnd.oasis.opendocument.text"

const (
	mimetypeEntry = "mimetype"
	contentEntry  = "content.xml"
	stylesEntry   = "styles.xml"
)

// odtPackage is an in-memory copy of a template. The file on disk is only read.
type odtPackage struct {
	path    string
	files   []*zip.File
	mime    []byte
	content *etree.Document
	styles  *etree.Document
}

// loadTemplate reads the template at path into memory.
func loadTemplate(path string) (*odtPackage, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &TemplateNotFoundError{Path: path}
		}
		return nil, &TemplateError{Path: path, Message: "failed to stat template", Cause: err}
	}
	if info.IsDir() {
		return nil, &TemplateNotFoundError{Path: path}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateError{Path: path, Message: "failed to read template", Cause: err}
	}
	return parsePackage(path, raw)
}

func parsePackage(path string, raw []byte) (*odtPackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, &TemplateError{Path: path, Message: "not an OpenDocument package", Cause: err}
	}

	p := &odtPackage{path: path, files: zr.File, mime: []byte(MimeType)}
	for _, f := range zr.File {
		switch f.Name {
		case mimetypeEntry:
			data, err := readEntry(f)
			if err != nil {
				return nil, &TemplateError{Path: path, Message: "failed to read mimetype", Cause: err}
			}
			p.mime = data
		case contentEntry:
			if p.content, err = readXML(f); err != nil {
				return nil, &RenderError{Message: "failed to parse " + contentEntry, Cause: err}
			}
		case stylesEntry:
			if p.styles, err = readXML(f); err != nil {
				return nil, &RenderError{Message: "failed to parse " + stylesEntry, Cause: err}
			}
		}
	}

	if p.content == nil || p.content.Root() == nil {
		return nil, &TemplateError{Path: path, Message: "package has no " + contentEntry}
	}
	return p, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func readXML(f *zip.File) (*etree.Document, error) {
	data, err := readEntry(f)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	return doc, nil
}

// bytes serializes the package. The mimetype entry is written first and
// uncompressed as ODF requires; parsed XML parts are re-encoded and every
// other entry is copied unchanged.
func (p *odtPackage) bytes() ([]byte, error) {
	parts := map[string]*etree.Document{contentEntry: p.content}
	if p.styles != nil {
		parts[stylesEntry] = p.styles
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: mimetypeEntry, Method: zip.Store})
	if err != nil {
		return nil, fmt.Errorf("failed to write mimetype: %w", err)
	}
	if _, err := w.Write(p.mime); err != nil {
		return nil, fmt.Errorf("failed to write mimetype: %w", err)
	}

	for _, f := range p.files {
		if f.Name == mimetypeEntry {
			continue
		}
		doc, ok := parts[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("failed to copy %s: %w", f.Name, err)
			}
			continue
		}

		data, err := doc.WriteToBytes()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s: %w", f.Name, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize package: %w", err)
	}
	return buf.Bytes(), nil
}
