package crop

import (
	"math"
	"sort"

	"github.com/prepworks/examimport/internal/profile"
)

// Box is a pixel rectangle on a rendered page image.
type Box struct {
	X      int
	Y      int
	Width  int
	Height int
}

// QuestionCrop is the computed visual region of one question.
type QuestionCrop struct {
	Number   int
	Page     int
	Box      Box
	Fallback bool   // box degenerated to (close to) the full page
	Reason   string // set when Fallback is true
}

// Layout classifies how a question's choices sit on the page.
type Layout string

const (
	// LayoutHorizontal: all choices on one text line.
	LayoutHorizontal Layout = "horizontal"
	// LayoutVertical: one choice per line, moderate gaps.
	LayoutVertical Layout = "vertical"
	// LayoutGraphical: a large gap between consecutive choices, usually a
	// diagram or formula between them.
	LayoutGraphical Layout = "graphical"
)

const fallbackReason = "fallback-full-page"

// Engine computes crop boxes from page marker lists. The calibration values
// are in page-space units; the engine scales them once so the same profile
// behaves identically at any render resolution.
type Engine struct {
	cal   profile.Crop
	scale float64
}

// NewEngine creates a crop engine for pages rendered at the given
// magnification.
func NewEngine(cal profile.Crop, scale float64) *Engine {
	if scale <= 0 {
		scale = 1
	}
	return &Engine{cal: cal, scale: scale}
}

func (e *Engine) px(pageSpace float64) float64 {
	return pageSpace * e.scale
}

// Compute returns one crop per requested question number. Questions whose
// marker is absent from the page, and boxes that degenerate, fall back to a
// full-page-minus-margins box flagged Fallback.
func (e *Engine) Compute(pm PageMarkers, questionNos []int) []QuestionCrop {
	questions := filterKind(pm.Markers, MarkerQuestion)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Y < questions[j].Y })

	crops := make([]QuestionCrop, 0, len(questionNos))
	for _, number := range questionNos {
		crops = append(crops, e.computeOne(pm, questions, number))
	}
	return crops
}

func (e *Engine) computeOne(pm PageMarkers, questions []Marker, number int) QuestionCrop {
	idx := -1
	for i, q := range questions {
		if q.Number == number {
			idx = i
			break
		}
	}
	if idx < 0 {
		return e.fallback(pm, number)
	}
	q := questions[idx]

	// Hard lower boundary: the single invariant that keeps a crop from
	// bleeding into the next question's content.
	hardBottom := pm.Height - e.px(e.cal.BottomMargin)
	if idx+1 < len(questions) {
		hardBottom = questions[idx+1].Y - e.px(e.cal.NextQuestionGap)
	} else if fy, ok := footerBelow(pm.Markers, q.Y); ok {
		hardBottom = fy - e.px(e.cal.FooterGap)
	}

	// Provisional top: never expands upward into the previous question's
	// territory even if the content looks short.
	top := math.Max(q.Y-e.px(e.cal.TopPad), e.px(e.cal.TopMargin))

	bottom := hardBottom
	if choices := choicesInBand(pm.Markers, q.Y, hardBottom); len(choices) >= 2 {
		layout := e.classify(choices)
		last := choices[len(choices)-1].Y
		bottom = math.Min(last+e.px(e.pad(layout)), hardBottom)
	}

	if bottom-top < e.px(e.cal.MinHeight) {
		bottom = math.Min(top+e.px(e.cal.MinHeight), hardBottom)
	}

	if bottom-top <= 0 {
		return e.fallback(pm, number)
	}

	return QuestionCrop{
		Number: number,
		Page:   pm.Page,
		Box:    e.clamp(pm, top, bottom),
	}
}

// classify decides the choice layout from the vertical choice positions,
// which must be sorted ascending.
func (e *Engine) classify(choices []Marker) Layout {
	first := choices[0].Y
	last := choices[len(choices)-1].Y
	if last-first <= e.px(e.cal.HorizontalSpread) {
		return LayoutHorizontal
	}

	maxGap := 0.0
	for i := 1; i < len(choices); i++ {
		if gap := choices[i].Y - choices[i-1].Y; gap > maxGap {
			maxGap = gap
		}
	}
	if maxGap > e.px(e.cal.GraphicalGapThreshold) {
		return LayoutGraphical
	}
	return LayoutVertical
}

func (e *Engine) pad(layout Layout) float64 {
	switch layout {
	case LayoutHorizontal:
		return e.cal.HorizontalPad
	case LayoutGraphical:
		return e.cal.GraphicalPad
	default:
		return e.cal.VerticalPad
	}
}

func (e *Engine) fallback(pm PageMarkers, number int) QuestionCrop {
	top := e.px(e.cal.TopMargin)
	bottom := pm.Height - e.px(e.cal.BottomMargin)
	return QuestionCrop{
		Number:   number,
		Page:     pm.Page,
		Box:      e.clamp(pm, top, bottom),
		Fallback: true,
		Reason:   fallbackReason,
	}
}

// clamp builds the final box, forcing it inside the page raster.
func (e *Engine) clamp(pm PageMarkers, top, bottom float64) Box {
	side := e.px(e.cal.SideMargin)

	x := math.Max(side, 0)
	y := math.Max(top, 0)
	right := math.Min(pm.Width-side, pm.Width)
	low := math.Min(bottom, pm.Height)

	if right <= x {
		x, right = 0, pm.Width
	}
	if low <= y {
		y, low = 0, pm.Height
	}

	return Box{
		X:      int(math.Round(x)),
		Y:      int(math.Round(y)),
		Width:  int(math.Round(right - x)),
		Height: int(math.Round(low - y)),
	}
}

func filterKind(markers []Marker, kind MarkerKind) []Marker {
	var out []Marker
	for _, m := range markers {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// footerBelow returns the nearest footer marker position below y.
func footerBelow(markers []Marker, y float64) (float64, bool) {
	best := math.Inf(1)
	found := false
	for _, m := range markers {
		if m.Kind == MarkerFooter && m.Y > y && m.Y < best {
			best = m.Y
			found = true
		}
	}
	return best, found
}

// choicesInBand returns the choice markers between a question marker and its
// hard lower boundary, sorted by position.
func choicesInBand(markers []Marker, from, to float64) []Marker {
	var out []Marker
	for _, m := range markers {
		if m.Kind == MarkerChoice && m.Y >= from && m.Y <= to {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Y < out[j].Y })
	return out
}
