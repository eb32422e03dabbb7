package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/pavelanni/qla/internal/model"
)

// Ext is the extension of rendered reports.
const Ext = ".pdf"

// Reflection prompts printed on the second page, each followed by a blank box.
var Prompts = []string{
	"What did I do well?",
	"Which topics do I need to revisit?",
	"What actions will I take before the next test?",
}

// Table column widths in mm.
const (
	colTopic = 80
	colPaper = 18
	colScore = 22
	colMax   = 22
	colPct   = 22
	colRAG   = 26
	rowH     = 10
)

const fontFamily = "Arial"

// Option configures a Renderer.
type Option func(*Renderer)

// WithBranding places the logo on every report. A nil branding is ignored.
func WithBranding(b *Branding) Option {
	return func(r *Renderer) { r.branding = b }
}

// WithClock sets the time source for document metadata and archive entries.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// Renderer lays out StudentReports as PDF documents.
type Renderer struct {
	branding *Branding
	now      func() time.Time
	compress bool // page content streams; off only to read them in tests
}

// NewRenderer creates a Renderer.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{now: time.Now, compress: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes one student's two-page report to w.
func (r *Renderer) Render(w io.Writer, rep StudentReport, boundaries model.Boundaries) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	ts := r.now()
	pdf.SetCreationDate(ts)
	pdf.SetModificationDate(ts)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(r.compress)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	cell := func(w, h float64, txt, border string, ln int, fill bool) {
		pdf.CellFormat(w, h, tr(txt), border, ln, "", fill, 0, "")
	}
	fillColor := func(c model.RGB) { pdf.SetFillColor(c.R, c.G, c.B) }

	pdf.AddPage()
	if r.branding != nil {
		r.branding.register(pdf)
		pdf.ImageOptions(r.branding.name, 165, 8, 30, 0, false, r.branding.options(), 0, "")
	}

	pdf.SetFont(fontFamily, "B", 16)
	pdf.SetXY(10, 20)
	cell(140, 10, "QLA Report for "+rep.Name, "", 1, false)
	pdf.SetFont(fontFamily, "", 12)
	cell(200, 10, fmt.Sprintf("Current Grade: %s | Target Grade: %s", rep.CurrentGrade, rep.TargetGrade), "", 1, false)

	pdf.Ln(10)
	pdf.SetFont(fontFamily, "B", 12)
	fillColor(model.FillHeader)
	cell(colTopic, rowH, "Topic", "1", 0, true)
	cell(colPaper, rowH, "Paper", "1", 0, true)
	cell(colScore, rowH, "Score", "1", 0, true)
	cell(colMax, rowH, "Max", "1", 0, true)
	cell(colPct, rowH, "%", "1", 0, true)
	cell(colRAG, rowH, "RAG", "1", 0, true)
	pdf.Ln(-1)

	for _, row := range rep.Rows {
		fillColor(row.Category.Fill())
		cell(colTopic, rowH, row.Topic, "1", 0, true)
		cell(colPaper, rowH, strconv.Itoa(row.Paper), "1", 0, true)
		cell(colScore, rowH, strconv.Itoa(row.Score), "1", 0, true)
		cell(colMax, rowH, strconv.Itoa(row.Max), "1", 0, true)
		cell(colPct, rowH, FormatPercent(row.Percent), "1", 0, true)
		cell(colRAG, rowH, string(row.Category), "1", 0, true)
		pdf.Ln(-1)
	}

	fillColor(model.FillTotal)
	pdf.SetFont(fontFamily, "B", 12)
	cell(colTopic+colPaper, rowH, "TOTAL", "1", 0, true)
	cell(colScore, rowH, strconv.Itoa(rep.TotalScore), "1", 0, true)
	cell(colMax, rowH, strconv.Itoa(rep.TotalMax), "1", 0, true)
	cell(colPct, rowH, FormatPercent(rep.OverallPercent), "1", 0, true)
	cell(colRAG, rowH, "", "1", 0, true)
	pdf.Ln(-1)

	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 12)
	cell(0, 10, "Grade Boundaries", "", 1, false)
	pdf.SetFont(fontFamily, "", 12)
	for _, b := range boundaries {
		cell(40, 8, b.Grade+":", "0", 0, false)
		cell(40, 8, fmt.Sprintf("%d%%", b.MinimumMark), "0", 0, false)
		pdf.Ln(-1)
	}

	pdf.Ln(10)
	for i, prompt := range Prompts {
		cell(0, 10, prompt, "", 1, false)
		pdf.Rect(10, pdf.GetY(), 190, 25, "D")
		if i < len(Prompts)-1 {
			pdf.Ln(30)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render report for %s: %w", rep.Name, err)
	}
	return nil
}
