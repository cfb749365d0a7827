// Package crop computes, per question, a pixel bounding box on its rendered
// source page, and extracts those regions into standalone images. The box
// computation is pure geometry over marker lists and never touches I/O, so it
// can be exercised against synthetic layouts.
package crop

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/prepworks/examimport/internal/pdfdoc"
	"github.com/prepworks/examimport/internal/profile"
)

// MarkerKind classifies a positional anchor found in a page's text layout.
type MarkerKind string

const (
	MarkerQuestion MarkerKind = "question"
	MarkerChoice   MarkerKind = "choice"
	MarkerFooter   MarkerKind = "footer"
)

// Marker is a recognizable text fragment with its vertical position in
// rendered-page pixel space (pixels from the top edge).
type Marker struct {
	Kind   MarkerKind
	Number int    // question number, for MarkerQuestion
	Label  string // choice letter, for MarkerChoice
	Y      float64
}

// PageMarkers is the marker layout of one rendered page, in pixel space.
type PageMarkers struct {
	Page    int
	Width   float64
	Height  float64
	Markers []Marker
}

var (
	questionStart = regexp.MustCompile(`(?i)^Q(\d{1,3})\.`)
	choiceStart   = regexp.MustCompile(`(?i)^([a-d])\)`)
)

// ScanPage collects question, choice and footer markers from a page's text
// layout. Positions are converted from page-space units to pixels using the
// render magnification. Markers come out sorted by vertical position.
func ScanPage(pt pdfdoc.PageText, prof profile.Profile, scale float64) PageMarkers {
	pm := PageMarkers{
		Page:   pt.Number,
		Width:  pt.Width * scale,
		Height: pt.Height * scale,
	}

	for _, line := range pt.Lines {
		y := line.Top * scale
		switch {
		case questionStart.MatchString(line.Text):
			m := questionStart.FindStringSubmatch(line.Text)
			number, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			pm.Markers = append(pm.Markers, Marker{Kind: MarkerQuestion, Number: number, Y: y})
		case choiceStart.MatchString(line.Text):
			m := choiceStart.FindStringSubmatch(line.Text)
			pm.Markers = append(pm.Markers, Marker{Kind: MarkerChoice, Label: m[1], Y: y})
		case prof.FooterRe() != nil && prof.FooterRe().MatchString(line.Text):
			pm.Markers = append(pm.Markers, Marker{Kind: MarkerFooter, Y: y})
		}
	}

	sort.SliceStable(pm.Markers, func(i, j int) bool { return pm.Markers[i].Y < pm.Markers[j].Y })
	return pm
}
