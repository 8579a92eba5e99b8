package receipts

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const pdfMargin = 18.0

type pdfColumn struct {
	title string
	width float64
}

var (
	tokenColumns = []pdfColumn{
		{"ID", 62}, {"Token", 36}, {"Expires at", 36}, {"One-time", 14}, {"Revoked", 14}, {"Uses", 12},
	}
	eventColumns = []pdfColumn{
		{"Time", 36}, {"Type", 38}, {"Actor", 20}, {"Message", 80},
	}
)

// receiptPDF writes one receipt with the core Helvetica font. Text passes
// through a cp1252 translator since core fonts are not UTF-8.
type receiptPDF struct {
	doc *fpdf.Fpdf
	tr  func(string) string
}

// WritePDF renders the receipt as an A4 PDF document
func WritePDF(w io.Writer, r *Receipt) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin)
	doc.SetCreationDate(r.GeneratedAt)
	doc.SetModificationDate(r.GeneratedAt)
	doc.SetTitle(fmt.Sprintf("Consent Receipt - Stream %s", r.Stream.ID), true)
	doc.AddPage()

	p := &receiptPDF{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}

	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 10, p.tr("Consent Receipt - Stream "+r.Stream.ID.String()), "", 1, "L", false, 0, "")
	p.text("Generated at " + pdfTime(r.GeneratedAt))

	p.heading("Stream")
	p.pairs([][2]string{
		{"ID", r.Stream.ID.String()},
		{"Name", r.Stream.Name},
		{"Status", string(r.Stream.Status)},
		{"Expires at", pdfTime(r.Stream.ExpiresAt)},
		{"Accesses", fmt.Sprint(r.Stream.AccessCount)},
	})

	p.heading("Dataset")
	if d := r.Dataset; d != nil {
		p.pairs([][2]string{{"ID", d.ID.String()}, {"Name", d.Name}, {"SHA-256", d.ContentHash}})
	} else {
		p.text("N/A")
	}

	p.heading("Rule")
	if rule := r.Rule; rule != nil {
		p.text("Name: " + rule.Name)
		p.text("Fields: " + strings.Join(rule.Fields, ", "))
		p.text(fmt.Sprintf("TTL: %d minutes", rule.TTLMinutes))
		for _, f := range rule.Filters {
			line := fmt.Sprintf("Filter: %s %s %v", f.Field, f.Op, f.Value)
			if f.Value2 != nil {
				line += fmt.Sprintf(" .. %v", f.Value2)
			}
			p.text(line)
		}
		for _, a := range rule.Aggregations {
			p.text(fmt.Sprintf("Aggregation: %s(%s)", a.Op, a.Field))
		}
		if o := rule.Obfuscation; o != nil {
			noise := string(o.NoiseLevel)
			if noise == "" {
				noise = "none"
			}
			p.text(fmt.Sprintf("k-anonymity: %d, drop PII: %t, noise: %s", o.KAnonymity, o.DropPII, noise))
		}
	} else {
		p.text("N/A")
	}

	p.heading("Tokens")
	tokenRows := make([][]string, 0, len(r.Tokens))
	for _, t := range r.Tokens {
		tokenRows = append(tokenRows, []string{
			t.ID.String(), t.Token, pdfTime(t.ExpiresAt), yesNo(t.OneTime), yesNo(t.Revoked), fmt.Sprint(t.AccessCount),
		})
	}
	p.table(tokenColumns, tokenRows)

	p.heading("Audit events")
	eventRows := make([][]string, 0, len(r.Events))
	for _, e := range r.Events {
		eventRows = append(eventRows, []string{pdfTime(e.CreatedAt), string(e.Type), e.Actor, e.Message})
	}
	p.table(eventColumns, eventRows)

	if err := doc.Error(); err != nil {
		return fmt.Errorf("failed to build receipt pdf: %w", err)
	}
	return doc.Output(w)
}

func (p *receiptPDF) heading(s string) {
	p.doc.Ln(4)
	p.doc.SetFont("Helvetica", "B", 12)
	p.doc.CellFormat(0, 7, p.tr(s), "", 1, "L", false, 0, "")
}

func (p *receiptPDF) text(s string) {
	p.doc.SetFont("Helvetica", "", 10)
	p.doc.MultiCell(0, 5, p.tr(s), "", "L", false)
}

func (p *receiptPDF) pairs(rows [][2]string) {
	p.doc.SetFont("Helvetica", "", 10)
	for _, kv := range rows {
		p.doc.SetFillColor(245, 245, 245)
		p.doc.CellFormat(40, 6, p.tr(kv[0]), "1", 0, "L", true, 0, "")
		p.doc.CellFormat(0, 6, p.tr(p.fit(kv[1], 134)), "1", 1, "L", false, 0, "")
	}
}

func (p *receiptPDF) table(cols []pdfColumn, rows [][]string) {
	p.doc.SetFont("Helvetica", "B", 8)
	p.doc.SetFillColor(245, 245, 245)
	for _, c := range cols {
		p.doc.CellFormat(c.width, 6, c.title, "1", 0, "L", true, 0, "")
	}
	p.doc.Ln(-1)

	p.doc.SetFont("Helvetica", "", 8)
	if len(rows) == 0 {
		p.doc.CellFormat(0, 6, "none", "1", 1, "L", false, 0, "")
		return
	}
	for _, row := range rows {
		for i, c := range cols {
			p.doc.CellFormat(c.width, 6, p.tr(p.fit(row[i], c.width-2)), "1", 0, "L", false, 0, "")
		}
		p.doc.Ln(-1)
	}
}

// fit truncates s with an ellipsis until it fits in width millimetres at
// the current font
func (p *receiptPDF) fit(s string, width float64) string {
	if p.doc.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && p.doc.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func pdfTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
