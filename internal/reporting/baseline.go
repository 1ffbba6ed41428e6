package reporting

import (
	"fmt"
	"math"
)

const (
	// Window is both the decay constant of the rolling average and the number
	// of samples a baseline needs before hits are considered
	Window = 150
)

// baseline is the rolling average power of one frequency
type baseline struct {
	average   float64
	count     int
	saturated bool
}

func newBaseline(power float64) *baseline {
	return &baseline{average: power, count: 1}
}

// mature reports whether the baseline has seen enough samples for hit
// detection. count never exceeds Window, so only saturation can satisfy it.
func (b *baseline) mature() bool {
	return b.count > Window || b.saturated
}

// threshold returns the power a reading must exceed to be a hit
func (b *baseline) threshold(margin float64) float64 {
	return b.average + margin
}

// isHit applies the hit rule: strictly above the threshold, on a mature baseline
func (b *baseline) isHit(power, margin float64) bool {
	return power > b.threshold(margin) && b.mature()
}

// update folds power into the exponential average and advances the counter,
// pinning it as saturated once it reaches Window
func (b *baseline) update(power float64) {
	b.average -= b.average / Window
	b.average += power / Window

	switch {
	case b.saturated:
	case b.count < Window:
		b.count++
	default:
		b.saturated = true
	}
}

// countLabel renders the sample counter for diagnostics
func (b *baseline) countLabel() string {
	if b.saturated {
		return "done"
	}
	return fmt.Sprintf("%d", b.count)
}

// overPercent is the deviation of power from average in percent, to three decimals
func overPercent(power, average float64) string {
	return fmt.Sprintf("%.3f", math.Abs((power-average)/average*100))
}
