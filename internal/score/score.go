// Package score computes retention scores for tracked files. Scoring is a
// pure function of the input feature vector: identical inputs always produce
// identical scores.
package score

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/hpungsan/loam/internal/file"
)

// Score bands per generation mode. The computed score stays within the
// band's floor; hints may push it above the band ceiling, capped at MaxScore.
const (
	MaxScore = 10.0

	minimalLow       = 0.0
	minimalHigh      = 4.0
	professionalLow  = 3.0
	professionalHigh = 7.0
	researchLow      = 6.0
	researchHigh     = 10.0
)

// Saturation points for the content signals.
const (
	lengthSaturationChars = 4000
	structureSaturation   = 10.0

	retainDaysSaturation = 90
	retainDaysMaxBonus   = 2.0
	importanceTagBonus   = 0.25
	importanceMaxBonus   = 1.0
)

// Input is the feature vector for one scoring call.
type Input struct {
	Content string
	Mode    file.Mode

	// RetainDays is an explicit retention override in days (0 = none),
	// e.g. "strategic decision, retain 90 days".
	RetainDays int

	// Stakeholders and Frameworks are importance signals tagged by the
	// caller at registration time.
	Stakeholders []string
	Frameworks   []string
}

// Band returns the [low, high] score band for a generation mode.
func Band(m file.Mode) (low, high float64) {
	switch m {
	case file.ModeResearch:
		return researchLow, researchHigh
	case file.ModeProfessional:
		return professionalLow, professionalHigh
	default:
		return minimalLow, minimalHigh
	}
}

// Score computes the retention score in [0.0, 10.0]. The base lands inside
// the mode's band, positioned by content richness; explicit importance hints
// add on top, never dropping below the band floor and never exceeding 10.
func Score(in Input) float64 {
	low, high := Band(in.Mode)

	richness := 0.4*lengthFactor(in.Content) + 0.6*structureFactor(in.Content)
	base := low + richness*(high-low)

	bonus := retainBonus(in.RetainDays) + importanceBonus(len(in.Stakeholders)+len(in.Frameworks))

	s := base + bonus
	if s < low {
		s = low
	}
	if s > MaxScore {
		s = MaxScore
	}
	return s
}

func lengthFactor(content string) float64 {
	chars := file.CountChars(content)
	if chars >= lengthSaturationChars {
		return 1.0
	}
	return float64(chars) / lengthSaturationChars
}

// structureFactor measures structural richness by walking the markdown AST:
// headings and code blocks count as full units, lists and links as half.
func structureFactor(content string) float64 {
	units := 0.0
	root := goldmark.New().Parser().Parse(text.NewReader([]byte(content)))
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Heading, *ast.FencedCodeBlock, *ast.CodeBlock:
			units++
		case *ast.List, *ast.Link, *ast.AutoLink:
			units += 0.5
		}
		return ast.WalkContinue, nil
	})

	if units >= structureSaturation {
		return 1.0
	}
	return units / structureSaturation
}

func retainBonus(days int) float64 {
	if days <= 0 {
		return 0
	}
	bonus := float64(days) / retainDaysSaturation * retainDaysMaxBonus
	if bonus > retainDaysMaxBonus {
		return retainDaysMaxBonus
	}
	return bonus
}

func importanceBonus(signals int) float64 {
	bonus := float64(signals) * importanceTagBonus
	if bonus > importanceMaxBonus {
		return importanceMaxBonus
	}
	return bonus
}
