// Package metrics derives the in-session feedback scores shown after each user turn.
// Scores are heuristic and non-authoritative; only a final snapshot is persisted.
package metrics

import (
	"math"
	"strings"
	"unicode/utf8"
)

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// RealTime is recomputed on every user turn.
type RealTime struct {
	Rapport  int   `json:"rapport"`
	Clarity  int   `json:"clarity"`
	Empathy  int   `json:"empathy"`
	Accuracy int   `json:"accuracy"`
	Overall  int   `json:"overall"`
	Trend    Trend `json:"trend"`
}

type component struct {
	base, min float64
}

var (
	rapportC  = component{base: 55, min: 40}
	clarityC  = component{base: 50, min: 30}
	empathyC  = component{base: 50, min: 35}
	accuracyC = component{base: 60, min: 45}
)

const longMessageWords = 120

var empathyCues = []string{
	"entiendo", "comprendo", "gracias", "perfecto", "claro", "le escucho",
	"understand", "i hear you", "thank you", "appreciate", "makes sense", "sorry",
}

// Estimate computes the metrics for the latest user message. messageCount is the
// number of user messages including this one; previousOverall is the last overall
// score shown (nil on the first turn, which yields a stable trend).
func Estimate(text string, messageCount int, previousOverall *int) RealTime {
	if messageCount < 0 {
		messageCount = 0
	}
	count := float64(messageCount)
	length := utf8.RuneCountInString(text)
	words := len(strings.Fields(text))

	clarity := clarityC.base + float64(words)/2
	if words > longMessageWords {
		clarity -= 10
	}

	m := RealTime{
		Rapport:  clamp(rapportC.base+3*count, rapportC.min),
		Clarity:  clamp(clarity, clarityC.min),
		Empathy:  clamp(empathyC.base+2*count+5*float64(countCues(text)), empathyC.min),
		Accuracy: clamp(accuracyC.base+math.Min(float64(length)/40, 20)+count, accuracyC.min),
	}
	m.Overall = Overall(m.Rapport, m.Clarity, m.Empathy, m.Accuracy)
	m.Trend = TrendStable
	if previousOverall != nil {
		m.Trend = TrendOf(m.Overall, *previousOverall)
	}
	return m
}

// Overall is the rounded unweighted mean of the four components.
func Overall(rapport, clarity, empathy, accuracy int) int {
	return int(math.Round(float64(rapport+clarity+empathy+accuracy) / 4))
}

func TrendOf(current, previous int) Trend {
	switch {
	case current > previous:
		return TrendUp
	case current < previous:
		return TrendDown
	default:
		return TrendStable
	}
}

// Clamp bounds a score to [0,100].
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp(v, min float64) int {
	if math.IsNaN(v) {
		return int(min)
	}
	return int(math.Round(math.Max(min, math.Min(100, v))))
}

func countCues(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, c := range empathyCues {
		if strings.Contains(lower, c) {
			n++
		}
	}
	return n
}
