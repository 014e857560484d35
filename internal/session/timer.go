package session

import (
	"context"
	"time"
)

// Clock supplies the current time. Injected so session and timer logic is
// testable without sleeping; production wiring passes time.Now.
type Clock func() time.Time

// countdown computes remaining time from fixed deadlines instead of
// decrementing a counter, so missed ticks never stretch the session.
type countdown struct {
	now      Clock
	start    time.Time
	deadline time.Time

	// sectionID is the active section; sectionDeadlines holds one persistent
	// deadline per timed section, set on first entry and never re-armed.
	sectionID        string
	sectionDeadlines map[string]time.Time
}

func newCountdown(now Clock, start time.Time, duration time.Duration) *countdown {
	return &countdown{
		now:              now,
		start:            start,
		deadline:         start.Add(duration),
		sectionDeadlines: map[string]time.Time{},
	}
}

// remaining is monotonically non-increasing and clamps at zero.
func (c *countdown) remaining() time.Duration {
	d := c.deadline.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

func (c *countdown) expired() bool { return !c.now().Before(c.deadline) }

// armSection makes a section the active one and starts its sub-countdown on
// first entry. The deadline is persistent: leaving the section and coming
// back never grants a fresh allocation. A zero limit means the section has
// no independent clock.
func (c *countdown) armSection(sectionID string, limit time.Duration) {
	c.sectionID = sectionID
	if limit <= 0 {
		return
	}
	if _, armed := c.sectionDeadlines[sectionID]; !armed {
		c.sectionDeadlines[sectionID] = c.now().Add(limit)
	}
}

func (c *countdown) sectionRemaining() (time.Duration, bool) {
	dl, ok := c.sectionDeadlines[c.sectionID]
	if !ok {
		return 0, false
	}
	d := dl.Sub(c.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func (c *countdown) sectionExpired() bool {
	dl, ok := c.sectionDeadlines[c.sectionID]
	return ok && !c.now().Before(dl)
}

// RunTicker drives the countdown with a once-per-second tick until the
// context is cancelled or the session expires. Expiry of a section's
// sub-timer forces navigation to the next section; expiry of the overall
// clock invokes onExpire exactly once and stops the loop. Manual submission
// cancels the context before closing, so tick and submit never race.
func (s *Session) RunTicker(ctx context.Context, onExpire func()) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Tick() {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// Tick reconciles the clocks once against the deadlines. Reports whether
// the overall countdown has expired.
func (s *Session) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.clk.expired() {
		return true
	}
	if s.clk.sectionExpired() && s.clk.sectionID == s.nav.currentSection().ID {
		s.advanceExpiredSectionLocked()
	}
	return false
}

// advanceExpiredSectionLocked moves to the next section when the active
// section's sub-timer runs out. On the last section there is nowhere to go:
// the whole session is treated as expired by pulling the overall deadline in.
func (s *Session) advanceExpiredSectionLocked() {
	cur := s.nav.currentSection()
	if !s.nav.advanceSection(cur.ID) {
		s.clk.deadline = s.now()
		return
	}
	s.enterQuestionLocked()
}
