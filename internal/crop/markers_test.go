package crop_test

import (
	"testing"

	"github.com/prepworks/examimport/internal/crop"
	"github.com/prepworks/examimport/internal/pdfdoc"
	"github.com/prepworks/examimport/internal/profile"
)

func TestScanPage(t *testing.T) {
	pt := pdfdoc.PageText{
		Number: 3,
		Width:  612,
		Height: 792,
		Lines: []pdfdoc.Line{
			{Text: "Q12. Which relay trips first?", Top: 120},
			{Text: "a) the primary", Top: 150},
			{Text: "B) the secondary", Top: 170},
			{Text: "see figure 4 below", Top: 200},
			{Text: "Page 3", Top: 780},
		},
	}

	pm := crop.ScanPage(pt, profile.Default(), 2)

	if pm.Page != 3 {
		t.Errorf("Page = %d, want 3", pm.Page)
	}
	if pm.Width != 1224 || pm.Height != 1584 {
		t.Errorf("page size = %vx%v, want 1224x1584", pm.Width, pm.Height)
	}
	if len(pm.Markers) != 4 {
		t.Fatalf("len(Markers) = %d, want 4 (prose line ignored)", len(pm.Markers))
	}

	first := pm.Markers[0]
	if first.Kind != crop.MarkerQuestion || first.Number != 12 || first.Y != 240 {
		t.Errorf("markers[0] = %+v, want question 12 at y=240", first)
	}
	if pm.Markers[1].Kind != crop.MarkerChoice || pm.Markers[1].Label != "a" {
		t.Errorf("markers[1] = %+v, want choice a", pm.Markers[1])
	}
	if pm.Markers[2].Kind != crop.MarkerChoice || pm.Markers[2].Label != "B" {
		t.Errorf("markers[2] = %+v, want choice B", pm.Markers[2])
	}
	if pm.Markers[3].Kind != crop.MarkerFooter || pm.Markers[3].Y != 1560 {
		t.Errorf("markers[3] = %+v, want footer at y=1560", pm.Markers[3])
	}
}

func TestScanPage_LowercaseQuestionMarker(t *testing.T) {
	pt := pdfdoc.PageText{
		Number: 1,
		Width:  612,
		Height: 792,
		Lines: []pdfdoc.Line{
			{Text: "q12. printed in lowercase", Top: 120},
		},
	}

	pm := crop.ScanPage(pt, profile.Default(), 1)
	if len(pm.Markers) != 1 {
		t.Fatalf("len(Markers) = %d, want 1", len(pm.Markers))
	}
	if pm.Markers[0].Kind != crop.MarkerQuestion || pm.Markers[0].Number != 12 {
		t.Errorf("markers[0] = %+v, want question 12", pm.Markers[0])
	}
}

func TestScanPage_AnchorsAtLineStartOnly(t *testing.T) {
	pt := pdfdoc.PageText{
		Number: 1,
		Width:  612,
		Height: 792,
		Lines: []pdfdoc.Line{
			{Text: "as seen in Q7. of the booklet", Top: 100},
			{Text: "ratio b) is larger than a)", Top: 120},
		},
	}

	pm := crop.ScanPage(pt, profile.Default(), 1)
	if len(pm.Markers) != 0 {
		t.Errorf("Markers = %+v, want none for mid-line fragments", pm.Markers)
	}
}

func TestScanPage_MarkersSortedByPosition(t *testing.T) {
	pt := pdfdoc.PageText{
		Number: 1,
		Width:  612,
		Height: 792,
		Lines: []pdfdoc.Line{
			{Text: "Q2. Second on page", Top: 400},
			{Text: "Q1. First on page", Top: 100},
		},
	}

	pm := crop.ScanPage(pt, profile.Default(), 1)
	if len(pm.Markers) != 2 {
		t.Fatalf("len(Markers) = %d, want 2", len(pm.Markers))
	}
	if pm.Markers[0].Number != 1 || pm.Markers[1].Number != 2 {
		t.Errorf("markers not sorted by position: %+v", pm.Markers)
	}
}
