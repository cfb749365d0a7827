package pdfdoc

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// RenderedPage is one rasterized page image on disk.
type RenderedPage struct {
	Number int // 1-based
	Path   string
	Width  int // pixels
	Height int // pixels
}

// baseDPI is the PDF point resolution; rendering at baseDPI*scale makes one
// page-space unit equal scale pixels.
const baseDPI = 72.0

// RenderPages rasterizes every page of the document into outDir as
// page-<n>.png at the given magnification. A failure on any page aborts the
// whole call; a partial page set is not usable downstream.
func RenderPages(doc []byte, outDir string, scale float64) ([]RenderedPage, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("render scale must be positive, got %v", scale)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	d, err := fitz.NewFromMemory(doc)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer d.Close()

	numPages := d.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]RenderedPage, 0, numPages)
	for i := 0; i < numPages; i++ {
		img, err := d.ImageDPI(i, baseDPI*scale)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}

		path := filepath.Join(outDir, fmt.Sprintf("page-%d.png", i+1))
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create page %d image: %w", i+1, err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return nil, fmt.Errorf("encode page %d image: %w", i+1, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("write page %d image: %w", i+1, err)
		}

		bounds := img.Bounds()
		pages = append(pages, RenderedPage{
			Number: i + 1,
			Path:   path,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}

	return pages, nil
}
