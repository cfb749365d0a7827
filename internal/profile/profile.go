// Package profile holds per-document-family calibration for the import
// pipeline. The crop paddings and thresholds are empirically tuned values;
// keeping them in named profiles lets a new document family be calibrated
// without touching the crop algorithm.
package profile

import (
	"fmt"
	"regexp"
)

// Crop holds the geometry constants used by the crop engine. All values are
// in page-space units (PDF points) and are scaled linearly by the render
// magnification before use, so behavior is resolution-independent.
type Crop struct {
	TopMargin    float64 `yaml:"top_margin"`    // crops never start above this line
	BottomMargin float64 `yaml:"bottom_margin"` // safe distance above the page bottom edge
	SideMargin   float64 `yaml:"side_margin"`   // horizontal inset on both sides

	TopPad          float64 `yaml:"top_pad"`           // slack above the question marker
	NextQuestionGap float64 `yaml:"next_question_gap"` // kept clear above the next question marker
	FooterGap       float64 `yaml:"footer_gap"`        // kept clear above a detected footer

	HorizontalSpread      float64 `yaml:"horizontal_spread"`       // max spread for same-line choices
	GraphicalGapThreshold float64 `yaml:"graphical_gap_threshold"` // consecutive-choice gap implying a diagram

	HorizontalPad float64 `yaml:"horizontal_pad"` // bottom pad, choices on one line
	VerticalPad   float64 `yaml:"vertical_pad"`   // bottom pad, one choice per line
	GraphicalPad  float64 `yaml:"graphical_pad"`  // bottom pad, diagram between choices

	MinHeight float64 `yaml:"min_height"`
}

// Profile is the calibration for one document family.
type Profile struct {
	Name         string `yaml:"name"`
	MaxQuestions int    `yaml:"max_questions"` // question numbers outside [1,MaxQuestions] are dropped
	FooterText   string `yaml:"footer_text"`   // regexp matching a page-footer text run
	SampleMarker string `yaml:"sample_marker"` // substring marking a restated illustrative question
	Crop         Crop   `yaml:"crop"`

	footerRe *regexp.Regexp
}

// Default returns the built-in calibration for the observed exam booklet
// family (80 questions, four choices, footer "Page N").
func Default() Profile {
	p := Profile{
		Name:         "default",
		MaxQuestions: 80,
		FooterText:   `(?i)^page\s+\d+`,
		SampleMarker: "sample question",
		Crop: Crop{
			TopMargin:    18,
			BottomMargin: 28,
			SideMargin:   10,

			TopPad:          8,
			NextQuestionGap: 6,
			FooterGap:       4,

			HorizontalSpread:      6,
			GraphicalGapThreshold: 110,

			HorizontalPad: 16,
			VerticalPad:   12,
			GraphicalPad:  150,

			MinHeight: 48,
		},
	}
	if err := p.compile(); err != nil {
		panic(err) // built-in pattern is static
	}
	return p
}

// FooterRe returns the compiled footer pattern, or nil when none is set.
func (p *Profile) FooterRe() *regexp.Regexp {
	return p.footerRe
}

func (p *Profile) compile() error {
	if p.FooterText == "" {
		p.footerRe = nil
		return nil
	}
	re, err := regexp.Compile(p.FooterText)
	if err != nil {
		return fmt.Errorf("profile %q: invalid footer_text: %w", p.Name, err)
	}
	p.footerRe = re
	return nil
}

// Validate checks that a profile is usable by the pipeline.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.MaxQuestions < 1 {
		return fmt.Errorf("profile %q: max_questions must be positive, got %d", p.Name, p.MaxQuestions)
	}
	c := p.Crop
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"top_margin", c.TopMargin},
		{"bottom_margin", c.BottomMargin},
		{"top_pad", c.TopPad},
		{"next_question_gap", c.NextQuestionGap},
		{"footer_gap", c.FooterGap},
		{"horizontal_spread", c.HorizontalSpread},
		{"graphical_gap_threshold", c.GraphicalGapThreshold},
		{"horizontal_pad", c.HorizontalPad},
		{"vertical_pad", c.VerticalPad},
		{"graphical_pad", c.GraphicalPad},
		{"min_height", c.MinHeight},
	} {
		if v.value < 0 {
			return fmt.Errorf("profile %q: crop.%s must not be negative", p.Name, v.name)
		}
	}
	if c.SideMargin < 0 {
		return fmt.Errorf("profile %q: crop.side_margin must not be negative", p.Name)
	}
	return p.compile()
}
