// Package pdfdoc reads the fixed-layout exam documents: flattened text,
// per-page positioned text lines, raster page images and content
// fingerprints. It is the only package that touches a PDF library; the rest
// of the pipeline works on its output types.
package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Line is one horizontal text run on a page. Top is the distance from the
// top edge of the page in page-space units (PDF points), so values grow
// downward the way the rendered image does.
type Line struct {
	Text string
	Top  float64
}

// PageText is the positioned text layout of a single page. Width and Height
// are the page dimensions in page-space units.
type PageText struct {
	Number int // 1-based
	Width  float64
	Height float64
	Lines  []Line
}

// ExtractText returns the flattened text of the whole document.
func ExtractText(doc []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return sb.String(), nil
}

// ExtractLayout returns, per page, the ordered text lines with their
// vertical positions. Lines are sorted top to bottom.
func ExtractLayout(doc []byte) ([]PageText, error) {
	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]PageText, 0, numPages)
	for n := 1; n <= numPages; n++ {
		page := r.Page(n)
		if page.V.IsNull() {
			return nil, fmt.Errorf("page %d: missing page object", n)
		}

		width, height := pageSize(page)

		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: extract rows: %w", n, err)
		}

		pt := PageText{Number: n, Width: width, Height: height}
		for _, row := range rows {
			text := rowText(row)
			if text == "" {
				continue
			}
			// Row positions are PDF-space (origin bottom-left); flip to
			// distance-from-top so geometry matches the rendered raster.
			pt.Lines = append(pt.Lines, Line{
				Text: text,
				Top:  height - float64(row.Position),
			})
		}
		pages = append(pages, pt)
	}

	return pages, nil
}

func rowText(row *pdf.Row) string {
	var sb strings.Builder
	for _, t := range row.Content {
		sb.WriteString(t.S)
	}
	return strings.TrimSpace(sb.String())
}

// pageSize resolves the page MediaBox, walking up the page tree for
// inherited values. Falls back to US Letter when absent.
func pageSize(page pdf.Page) (width, height float64) {
	const letterW, letterH = 612.0, 792.0

	v := page.V
	for !v.IsNull() {
		if box := v.Key("MediaBox"); !box.IsNull() && box.Len() == 4 {
			x0 := box.Index(0).Float64()
			y0 := box.Index(1).Float64()
			x1 := box.Index(2).Float64()
			y1 := box.Index(3).Float64()
			if x1 > x0 && y1 > y0 {
				return x1 - x0, y1 - y0
			}
		}
		v = v.Key("Parent")
	}
	return letterW, letterH
}
