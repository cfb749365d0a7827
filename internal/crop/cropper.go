package crop

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// subImager is satisfied by the stdlib raster image types.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CropQuestions extracts each box from the rendered page image into its own
// file, named q-<questionNo>.png under outDir. It returns question number to
// written path. A crop whose box does not fit the raster is skipped (the
// engine validates boxes; this only guards stale inputs); any I/O failure
// fails the whole batch, since a partially cropped job is not usable.
func CropQuestions(pagePath string, crops []QuestionCrop, outDir string) (map[int]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Open(pagePath)
	if err != nil {
		return nil, fmt.Errorf("open page image: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode page image %s: %w", pagePath, err)
	}

	si, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("page image %s does not support cropping", pagePath)
	}

	paths := make(map[int]string, len(crops))
	for _, c := range crops {
		rect := image.Rect(c.Box.X, c.Box.Y, c.Box.X+c.Box.Width, c.Box.Y+c.Box.Height)
		if rect.Empty() || !rect.In(img.Bounds()) {
			continue
		}

		out := filepath.Join(outDir, fmt.Sprintf("q-%d.png", c.Number))
		if err := writePNG(out, si.SubImage(rect)); err != nil {
			return nil, fmt.Errorf("crop question %d: %w", c.Number, err)
		}
		paths[c.Number] = out
	}

	return paths, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
