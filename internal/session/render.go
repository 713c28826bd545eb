package session

import (
	"math"

	"github.com/large-farva/earshot/internal/telemetry"
)

// ColorTier classifies a confidence percentage for display.
type ColorTier string

const (
	TierGreen  ColorTier = "green"
	TierOrange ColorTier = "orange"
	TierRed    ColorTier = "red"
)

// Renderer receives every display update the controller produces. The
// controller calls it only from the event loop.
type Renderer interface {
	UpdateStatus(title, message string, progress int)
	ShowCountdown(n int)
	ShowEarlyGuess(name string)
	ShowSuccessResult(song telemetry.Song, confidence int, tier ColorTier)
	ShowNoMatchResult(confidence int)
	ShowErrorResult(message, hint string)
	ResetView()
}

// ConfidencePercent converts a [0,1] confidence to the displayed integer
// percentage.
func ConfidencePercent(confidence float64) int {
	return int(math.Round(confidence * 100))
}

// TierFor picks the color tier of a matched result.
func TierFor(percent int) ColorTier {
	switch {
	case percent >= 60:
		return TierGreen
	case percent >= 40:
		return TierOrange
	default:
		return TierRed
	}
}

// StatusTitle is the heading shown for a recording status.
func StatusTitle(status string) string {
	if status == telemetry.StatusRecording {
		return "Recording Audio..."
	}
	return "Processing..."
}
