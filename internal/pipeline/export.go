package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jonathan/specsheet/internal/db"
	"github.com/jonathan/specsheet/internal/logging"
	"github.com/jonathan/specsheet/internal/rendering"
	"github.com/jonathan/specsheet/internal/types"
)

// ErrNoData is returned when there are no rows to export.
var ErrNoData = errors.New("no data to export")

// UnknownLanguageError is returned for a language missing from the catalog.
type UnknownLanguageError struct {
	Language string
}

func (e *UnknownLanguageError) Error() string {
	return fmt.Sprintf("unknown template language %q", e.Language)
}

// Language is one entry of the template catalog.
type Language struct {
	Name     string `json:"name" mapstructure:"name"`
	Template string `json:"template" mapstructure:"template"`
}

// DefaultLanguages is the shipped catalog, in display order.
func DefaultLanguages() []Language {
	return []Language{
		{Name: "Inglés", Template: "planillaIngles.odt"},
		{Name: "Alemán", Template: "planillaAleman.odt"},
		{Name: "Italiano", Template: "planillaItaliano.odt"},
		{Name: "Francés", Template: "planillaFrances.odt"},
		{Name: "Holandés", Template: "planillaHolandes.odt"},
		{Name: "Portugués", Template: "planillaPortugues.odt"},
	}
}

// Catalog maps language names to template files.
type Catalog struct {
	dir       string
	languages []Language
}

// NewCatalog creates a catalog. Relative template paths resolve against dir.
func NewCatalog(dir string, languages []Language) *Catalog {
	return &Catalog{dir: dir, languages: append([]Language(nil), languages...)}
}

// Languages returns the catalog entries in order.
func (c *Catalog) Languages() []Language {
	return append([]Language(nil), c.languages...)
}

// Default returns the first language, or "" for an empty catalog.
func (c *Catalog) Default() string {
	if len(c.languages) == 0 {
		return ""
	}
	return c.languages[0].Name
}

// Path returns the template path for language.
func (c *Catalog) Path(language string) (string, error) {
	for _, l := range c.languages {
		if l.Name != language {
			continue
		}
		if filepath.IsAbs(l.Template) || c.dir == "" {
			return l.Template, nil
		}
		return filepath.Join(c.dir, l.Template), nil
	}
	return "", &UnknownLanguageError{Language: language}
}

// Placeholders lists the markers found in language's template.
func (c *Catalog) Placeholders(language string) ([]string, error) {
	path, err := c.Path(language)
	if err != nil {
		return nil, err
	}
	return rendering.DiscoverPlaceholders(path)
}

// ExportRecorder stores export audit records. *db.DB implements it.
type ExportRecorder interface {
	RecordExport(ctx context.Context, e *db.Export) error
}

// ExportHistory lists a session's export records. *db.DB implements it.
type ExportHistory interface {
	ListExports(ctx context.Context, sessionID uuid.UUID) ([]db.Export, error)
}

// Export is a rendered document ready for download.
type Export struct {
	Language string           `json:"language"`
	Filename string           `json:"filename"`
	MimeType string           `json:"mime_type"`
	Document []byte           `json:"-"`
	Report   rendering.Report `json:"report"`
}

// Filename returns the download name for a language.
func Filename(language string) string {
	return fmt.Sprintf("datos_exportados_%s.odt", language)
}

// Exporter renders reconciled rows into a language template.
type Exporter struct {
	catalog  *Catalog
	style    rendering.Style
	recorder ExportRecorder
}

// NewExporter creates an Exporter. recorder may be nil.
func NewExporter(catalog *Catalog, style rendering.Style, recorder ExportRecorder) *Exporter {
	return &Exporter{catalog: catalog, style: style, recorder: recorder}
}

// Catalog returns the exporter's template catalog.
func (e *Exporter) Catalog() *Catalog { return e.catalog }

// Export binds rows to markers by position and substitutes them into the
// template of language. sessionID is only used for the audit record and may
// be uuid.Nil.
func (e *Exporter) Export(ctx context.Context, sessionID uuid.UUID, rows []types.ReconciledRow, language string) (*Export, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	path, err := e.catalog.Path(language)
	if err != nil {
		return nil, err
	}

	res, err := rendering.Substitute(ctx, path, rendering.BuildBindings(rows), rendering.WithStyle(e.style))
	if err != nil {
		return nil, err
	}

	out := &Export{
		Language: language,
		Filename: Filename(language),
		MimeType: rendering.MimeType,
		Document: res.Document,
		Report:   res.Report,
	}
	e.record(ctx, sessionID, out)
	return out, nil
}

// record writes the audit entry. Failures are logged and do not fail the export.
func (e *Exporter) record(ctx context.Context, sessionID uuid.UUID, out *Export) {
	if e.recorder == nil {
		return
	}
	rec := &db.Export{
		Language:     out.Language,
		Filename:     out.Filename,
		Replacements: out.Report.Total,
		Unmatched:    len(out.Report.Unmatched),
		SizeBytes:    len(out.Document),
	}
	if sessionID != uuid.Nil {
		rec.SessionID = &sessionID
	}
	if err := e.recorder.RecordExport(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("language", out.Language).Msg("failed to record export")
	}
}
