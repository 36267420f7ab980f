package humanize

import "time"

// ScrollMove is one scroll iteration. Up is zero when no correction happens.
type ScrollMove struct {
	Up    float64
	Down  float64
	Pause time.Duration
}

// ScrollPlan builds n iterations for a viewport of the given height. After the
// first iteration each has a 15% chance of a short upward correction first.
// Every move scrolls down 50-110% of the viewport, then pauses around 1.2s.
func (h *Humanizer) ScrollPlan(n int, viewport float64) []ScrollMove {
	if n <= 0 {
		return nil
	}
	if viewport <= 0 {
		viewport = 800
	}
	plan := make([]ScrollMove, 0, n)
	for i := 0; i < n; i++ {
		var m ScrollMove
		if i > 0 && h.Chance(scrollUpChance) {
			m.Up = h.Between(40, 180)
		}
		m.Down = viewport * h.Between(0.5, 1.1)
		if i < n-1 {
			m.Pause = h.Around(1200*time.Millisecond, 400*time.Millisecond)
		}
		plan = append(plan, m)
	}
	return plan
}
