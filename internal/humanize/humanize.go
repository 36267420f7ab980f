// Package humanize produces the randomized timings and pointer paths used to
// drive a browser the way a person would. Nothing here talks to the browser,
// so callers can swap in a seeded source or a no-op sleeper in tests.
package humanize

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
	"unicode"
)

const (
	minStddev        = 20 * time.Millisecond
	keystrokeMean    = 90.0
	keystrokeStddev  = 35.0
	keystrokeFloorMs = 25.0
	keystrokeCeilMs  = 300.0
	typoRate         = 0.05
	scrollUpChance   = 0.15
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RealSleep blocks on a timer.
func RealSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep returns immediately. Useful in tests.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Humanizer is safe for concurrent use.
type Humanizer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sleep SleepFunc
}

// New returns a Humanizer with a fixed seed. A nil sleep means RealSleep.
func New(seed uint64, sleep SleepFunc) *Humanizer {
	if sleep == nil {
		sleep = RealSleep
	}
	return &Humanizer{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		sleep: sleep,
	}
}

// NewRandom seeds from the runtime's random source.
func NewRandom() *Humanizer {
	return New(rand.Uint64(), nil)
}

func (h *Humanizer) Sleep(ctx context.Context, d time.Duration) error {
	return h.sleep(ctx, d)
}

func (h *Humanizer) float64() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64()
}

func (h *Humanizer) normal() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.NormFloat64()
}

// IntN returns a uniform int in [0, n).
func (h *Humanizer) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.IntN(n)
}

// Between returns a uniform float in [lo, hi).
func (h *Humanizer) Between(lo, hi float64) float64 {
	return lo + h.float64()*(hi-lo)
}

// Chance reports true with probability p.
func (h *Humanizer) Chance(p float64) bool {
	return h.float64() < p
}

// Gaussian draws from N(mean, stddev) clamped to [lo, hi].
func (h *Humanizer) Gaussian(mean, stddev, lo, hi float64) float64 {
	v := mean + h.normal()*stddev
	return math.Max(lo, math.Min(hi, v))
}

// Delay draws a duration within [min, max] from a Gaussian centred on the
// midpoint with stddev of a quarter of the range (never below 20ms).
func (h *Humanizer) Delay(min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	if max == min {
		return min
	}
	mean := float64(min+max) / 2
	stddev := math.Max(float64(max-min)/4, float64(minStddev))
	return time.Duration(h.Gaussian(mean, stddev, float64(min), float64(max)))
}

// DelayMs is Delay for millisecond bounds.
func (h *Humanizer) DelayMs(minMs, maxMs int) time.Duration {
	return h.Delay(time.Duration(minMs)*time.Millisecond, time.Duration(maxMs)*time.Millisecond)
}

// Around draws N(mean, stddev) clamped to [mean/4, mean*3].
func (h *Humanizer) Around(mean, stddev time.Duration) time.Duration {
	return time.Duration(h.Gaussian(float64(mean), float64(stddev), float64(mean)/4, float64(mean)*3))
}

// Keystroke returns the pause between two key presses.
func (h *Humanizer) Keystroke() time.Duration {
	ms := h.Gaussian(keystrokeMean, keystrokeStddev, keystrokeFloorMs, keystrokeCeilMs)
	return time.Duration(ms * float64(time.Millisecond))
}

// PressHold is how long a mouse button stays down during a click.
func (h *Humanizer) PressHold() time.Duration {
	return h.DelayMs(40, 140)
}

// Typo decides whether ch is mistyped first and returns the wrong letter.
// Only ASCII letters are mistyped and the wrong letter keeps ch's case.
func (h *Humanizer) Typo(ch rune) (rune, bool) {
	if ch > unicode.MaxASCII || !unicode.IsLetter(ch) || !h.Chance(typoRate) {
		return 0, false
	}
	base := 'a'
	if unicode.IsUpper(ch) {
		base = 'A'
	}
	wrong := base + rune(h.IntN(25))
	if wrong >= ch {
		wrong++
	}
	return wrong, true
}
