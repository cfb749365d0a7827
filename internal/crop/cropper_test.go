package crop_test

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/prepworks/examimport/internal/crop"
)

// writeTestPage writes a 200x300 image whose top half is white and bottom
// half is black.
func writeTestPage(t *testing.T, dir string) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 200, 300))
	for y := 0; y < 300; y++ {
		c := color.RGBA{255, 255, 255, 255}
		if y >= 150 {
			c = color.RGBA{0, 0, 0, 255}
		}
		for x := 0; x < 200; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(dir, "page-1.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCropQuestions(t *testing.T) {
	dir := t.TempDir()
	pagePath := writeTestPage(t, dir)
	outDir := filepath.Join(dir, "questions")

	crops := []crop.QuestionCrop{
		{Number: 1, Page: 1, Box: crop.Box{X: 10, Y: 20, Width: 100, Height: 50}},
		{Number: 2, Page: 1, Box: crop.Box{X: 0, Y: 160, Width: 200, Height: 140}},
	}

	paths, err := crop.CropQuestions(pagePath, crops, outDir)
	if err != nil {
		t.Fatalf("CropQuestions() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("len(paths) = %d, want 2", len(paths))
	}

	for number, wantSize := range map[int][2]int{1: {100, 50}, 2: {200, 140}} {
		path, ok := paths[number]
		if !ok {
			t.Fatalf("no path for question %d", number)
		}
		if filepath.Base(path) != fmt.Sprintf("q-%d.png", number) {
			t.Errorf("question %d path = %q, want deterministic q-%d.png name", number, path, number)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("decode crop %d: %v", number, err)
		}
		if img.Bounds().Dx() != wantSize[0] || img.Bounds().Dy() != wantSize[1] {
			t.Errorf("question %d crop = %dx%d, want %dx%d",
				number, img.Bounds().Dx(), img.Bounds().Dy(), wantSize[0], wantSize[1])
		}
	}

	// The second crop sits fully in the black half.
	f, _ := os.Open(paths[2])
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := img.At(img.Bounds().Min.X+5, img.Bounds().Min.Y+5).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("question 2 crop should be black, got rgb(%d,%d,%d)", r, g, b)
	}
}

func TestCropQuestions_SkipsOutOfBoundsBox(t *testing.T) {
	dir := t.TempDir()
	pagePath := writeTestPage(t, dir)

	crops := []crop.QuestionCrop{
		{Number: 1, Page: 1, Box: crop.Box{X: 10, Y: 20, Width: 100, Height: 50}},
		{Number: 2, Page: 1, Box: crop.Box{X: 150, Y: 250, Width: 100, Height: 100}}, // exceeds raster
		{Number: 3, Page: 1, Box: crop.Box{X: 0, Y: 0, Width: 0, Height: 0}},         // empty
	}

	paths, err := crop.CropQuestions(pagePath, crops, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("CropQuestions() error = %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("len(paths) = %d, want 1 (invalid boxes skipped)", len(paths))
	}
	if _, ok := paths[1]; !ok {
		t.Error("valid crop for question 1 missing")
	}
}

func TestCropQuestions_MissingPageImage(t *testing.T) {
	_, err := crop.CropQuestions("/nonexistent/page-1.png", nil, t.TempDir())
	if err == nil {
		t.Error("CropQuestions() should fail when the page image is missing")
	}
}
