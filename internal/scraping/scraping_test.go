package scraping

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/specsheet/internal/fetch"
	"github.com/jonathan/specsheet/internal/types"
)

const voertuigPage = `<html><body>
<h1>Volvo XC60</h1>
<table>
  <tr><th>Brandstof:</th><td>Diesel</td></tr>
  <tr><td>Bouwjaar</td><td>2019</td></tr>
  <tr><td colspan="2">Motor</td></tr>
  <tr><td>Vermogen</td><td>140 kW<br>190 pk</td></tr>
</table>
<dl>
  <dt>Kleur</dt><dd>Zwart</dd>
  <dt>Leeg</dt>
</dl>
</body></html>`

const typenscheinePage = `<html><body>
<table>
  <thead><tr><th>Merkmal</th><th>Schaltgetriebe</th><th>Automatik</th></tr></thead>
  <tbody>
    <tr><td>Getriebe</td><td>6-Gang manuell</td><td>8-Gang Automatik</td></tr>
    <tr><td>Leergewicht</td><td>1.795 kg</td><td>1.820 kg</td></tr>
    <tr><td>Hubraum</td><td>1.969 cm<sup>3</sup></td></tr>
  </tbody>
</table>
</body></html>`

const autoDataPage = `<html><body>
<table class="cardetailsout">
  <tr><th colspan="2">General information</th></tr>
  <tr><th>Brand</th><td>Volvo</td></tr>
  <tr><th>Fuel Type</th><td> Diesel </td></tr>
  <tr><th>Towing</th><td>None</td></tr>
</table>
<table><tr><th>Ignored</th><td>x</td></tr></table>
</body></html>`

func labels(fields []types.RawField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Label
	}
	return out
}

func TestParseVoertuig(t *testing.T) {
	fields, err := ParseHTML(ParseVoertuig, voertuigPage, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Brandstof", "Bouwjaar", "Vermogen", "Kleur"}, labels(fields))
	assert.Equal(t, "Diesel", fields[0].Value)
	assert.Equal(t, "140 kW 190 pk", fields[2].Value)
	assert.Equal(t, "Zwart", fields[3].Value)
}

func TestParseTypenscheine_TransmissionColumns(t *testing.T) {
	tests := []struct {
		name         string
		transmission types.Transmission
		gearbox      string
		weight       string
	}{
		{"default uses first column", types.TransmissionDefault, "6-Gang manuell", "1.795 kg"},
		{"manual", types.TransmissionManual, "6-Gang manuell", "1.795 kg"},
		{"automatic", types.TransmissionAutomatic, "8-Gang Automatik", "1.820 kg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := ParseHTML(ParseTypenscheine, typenscheinePage, Options{Transmission: tt.transmission})
			require.NoError(t, err)
			require.Len(t, fields, 3)
			assert.Equal(t, "Getriebe", fields[0].Label)
			assert.Equal(t, tt.gearbox, fields[0].Value)
			assert.Equal(t, tt.weight, fields[1].Value)
			// Rows with a single value fall back to it.
			assert.Equal(t, "1.969 cm3", fields[2].Value)
		})
	}
}

func TestParseTypenscheine_SingleColumn(t *testing.T) {
	page := `<table><tr><td>Farbe</td><td>Rot</td></tr></table>`
	fields, err := ParseHTML(ParseTypenscheine, page, Options{Transmission: types.TransmissionAutomatic})
	require.NoError(t, err)
	assert.Equal(t, []types.RawField{{Label: "Farbe", Value: "Rot"}}, fields)
}

func TestParseAutoData(t *testing.T) {
	fields, err := ParseHTML(ParseAutoData, autoDataPage, Options{})
	require.NoError(t, err)
	assert.Equal(t, []types.RawField{
		{Label: "Brand", Value: "Volvo"},
		{Label: "Fuel Type", Value: "Diesel"},
		{Label: "Towing", Value: "None"},
	}, fields)
}

func serve(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSite_Scrape(t *testing.T) {
	srv := serve(t, autoDataPage)
	reg := NewDefaultRegistry(fetch.NewClient(nil), nil)

	s, ok := reg.Get(types.SourceSite3)
	require.True(t, ok)

	table, err := s.Scrape(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, types.SourceSite3, table.Source)
	assert.Equal(t, srv.URL, table.URL)
	assert.Len(t, table.Fields, 3)
}

func TestSite_ScrapeFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s, _ := NewDefaultRegistry(fetch.NewClient(&fetch.Options{}), nil).Get(types.SourceSite1)
	_, err := s.Scrape(context.Background(), srv.URL, Options{})

	var scrapeErr *Error
	require.ErrorAs(t, err, &scrapeErr)
	assert.Equal(t, StageFetch, scrapeErr.Stage)
	assert.Equal(t, types.SourceSite1, scrapeErr.Source)

	var fetchErr *fetch.Error
	assert.ErrorAs(t, err, &fetchErr)
}

func TestSite_ScrapeNoRows(t *testing.T) {
	srv := serve(t, `<html><body><p>Loading…</p></body></html>`)
	s, _ := NewDefaultRegistry(fetch.NewClient(nil), nil).Get(types.SourceSite2)

	_, err := s.Scrape(context.Background(), srv.URL, Options{})
	var scrapeErr *Error
	require.ErrorAs(t, err, &scrapeErr)
	assert.Equal(t, StageParse, scrapeErr.Stage)
	assert.True(t, errors.Is(err, ErrNoRows))
}

type staticFetcher struct {
	html  string
	calls int
}

func (f *staticFetcher) Fetch(_ context.Context, url string) (*fetch.Result, error) {
	f.calls++
	return &fetch.Result{URL: url, HTML: f.html, StatusCode: 200}, nil
}

func TestSite_BrowserFallback(t *testing.T) {
	static := &staticFetcher{html: `<html><body><div id="app"></div></body></html>`}
	rendered := &staticFetcher{html: autoDataPage}
	s := &Site{ID: types.SourceSite3, Fetcher: static, Fallback: rendered, Parse: ParseAutoData}

	table, err := s.Scrape(context.Background(), "https://www.auto-data.test/volvo", Options{})
	require.NoError(t, err)
	assert.Len(t, table.Fields, 3)
	assert.Equal(t, 1, static.calls)
	assert.Equal(t, 1, rendered.calls)
}

func TestSite_NoFallbackWhenStaticParses(t *testing.T) {
	static := &staticFetcher{html: autoDataPage}
	rendered := &staticFetcher{}
	s := &Site{ID: types.SourceSite3, Fetcher: static, Fallback: rendered, Parse: ParseAutoData}

	_, err := s.Scrape(context.Background(), "https://www.auto-data.test/volvo", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, rendered.calls)
}

func TestNewRegistry_Rejects(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)

	_, err = NewRegistry(&Site{ID: types.SourceNone})
	assert.Error(t, err)

	_, err = NewRegistry(&Site{ID: types.SourceSite1}, &Site{ID: types.SourceSite1})
	assert.Error(t, err)

	var r *Registry
	_, ok := r.Get(types.SourceSite1)
	assert.False(t, ok)
}
