package model

import "math"

// Score bounds; every prediction is clamped into [MinScore, MaxScore].
const (
	MinScore = 300
	MaxScore = 900
)

// Unknown is the category for scores outside every band.
const Unknown = "Unknown"

// Band is an inclusive score range with a label.
type Band struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

var bands = []Band{
	{Name: "Very Poor", Min: 300, Max: 599},
	{Name: "Poor", Min: 600, Max: 649},
	{Name: "Fair", Min: 650, Max: 699},
	{Name: "Good", Min: 700, Max: 749},
	{Name: "Excellent", Min: 750, Max: 900},
}

// Bands returns the ordered band table.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}

// Categorize maps a score to its band name.
func Categorize(score int) string {
	for _, b := range bands {
		if score >= b.Min && score <= b.Max {
			return b.Name
		}
	}
	return Unknown
}

// Clamp bounds a raw model output and rounds it to an integer score.
func Clamp(raw float64) int {
	switch {
	case math.IsNaN(raw):
		return MinScore
	case raw <= MinScore:
		return MinScore
	case raw >= MaxScore:
		return MaxScore
	}
	return int(math.Round(raw))
}
