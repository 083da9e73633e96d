package scraping

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/specsheet/internal/types"
)

// ParseVoertuig reads site 1 pages: two-cell table rows and dt/dd pairs,
// in document order.
func ParseVoertuig(doc *goquery.Document, _ Options) []types.RawField {
	var fields []types.RawField
	doc.Find("table tr, dl").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "dl" {
			s.Find("dt").Each(func(_ int, dt *goquery.Selection) {
				dd := dt.NextFiltered("dd")
				if dd.Length() == 0 {
					return
				}
				fields = appendField(fields, cellText(dt), cellText(dd))
			})
			return
		}

		cells := s.ChildrenFiltered("th, td")
		if cells.Length() != 2 {
			return
		}
		fields = appendField(fields, cellText(cells.Eq(0)), cellText(cells.Eq(1)))
	})
	return fields
}

// ParseTypenscheine reads site 2 pages. Rows hold a label cell followed by
// one value cell per variant. When a header row names manual and automatic
// columns, opts.Transmission selects between them; otherwise the first value
// column is used.
func ParseTypenscheine(doc *goquery.Document, opts Options) []types.RawField {
	var fields []types.RawField
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		column := 0
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.ChildrenFiltered("th, td")
			if cells.Length() < 2 {
				return
			}
			if isHeaderRow(tr) {
				column = transmissionColumn(cells.Slice(1, cells.Length()), opts.Transmission)
				return
			}

			values := cells.Slice(1, cells.Length())
			idx := column
			if idx >= values.Length() {
				idx = 0
			}
			fields = appendField(fields, cellText(cells.Eq(0)), cellText(values.Eq(idx)))
		})
	})
	return fields
}

func isHeaderRow(tr *goquery.Selection) bool {
	if tr.ParentFiltered("thead").Length() > 0 {
		return true
	}
	return tr.ChildrenFiltered("td").Length() == 0
}

// transmissionColumn picks the header column matching t, 0 when none does.
func transmissionColumn(headers *goquery.Selection, t types.Transmission) int {
	if t == types.TransmissionDefault {
		return 0
	}
	column := 0
	headers.EachWithBreak(func(i int, h *goquery.Selection) bool {
		text := cellText(h)
		manual := containsFold(text, "manu") || containsFold(text, "schalt")
		auto := containsFold(text, "auto")
		if (t == types.TransmissionManual && manual) || (t == types.TransmissionAutomatic && auto && !manual) {
			column = i
			return false
		}
		return true
	})
	return column
}

// ParseAutoData reads site 3 pages: table.cardetailsout rows with a th label
// and a td value. Section headers (rows without a value cell) are skipped.
func ParseAutoData(doc *goquery.Document, _ Options) []types.RawField {
	var fields []types.RawField
	doc.Find("table.cardetailsout tr").Each(func(_ int, tr *goquery.Selection) {
		th := tr.ChildrenFiltered("th").First()
		td := tr.ChildrenFiltered("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		fields = appendField(fields, cellText(th), cellText(td))
	})
	return fields
}
