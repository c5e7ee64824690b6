package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Slide is a single page of a rendered presentation deck.
type Slide struct {
	Title string
	Body  string
}

// Deck is the printable form of a generated presentation.
type Deck struct {
	Title  string
	Slides []Slide
}

// PDFExporter renders presentation decks and tabular datasets into PDF bytes.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderDeck creates one landscape page per slide with a cover page up front.
func (e *PDFExporter) RenderDeck(deck Deck) ([]byte, error) {
	if len(deck.Slides) == 0 {
		return nil, fmt.Errorf("deck requires at least one slide")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(18, 22, 18)

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 26)
	pdf.CellFormat(0, 60, "", "", 1, "C", false, 0, "")
	pdf.MultiCell(0, 14, deck.Title, "", "C", false)

	for i, slide := range deck.Slides {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 18)
		pdf.MultiCell(0, 10, slide.Title, "", "L", false)
		pdf.Ln(4)
		pdf.SetFont("Arial", "", 12)
		pdf.MultiCell(0, 7, slide.Body, "", "L", false)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetY(-18)
		pdf.CellFormat(0, 8, fmt.Sprintf("%d / %d", i+1, len(deck.Slides)), "", 0, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render deck pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderTable creates a portrait PDF document with an optional title and table body.
func (e *PDFExporter) RenderTable(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render table pdf: %w", err)
	}
	return buf.Bytes(), nil
}
