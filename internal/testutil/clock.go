package testutil

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StubClock is a manually advanced registry clock. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// FixedClock returns a StubClock starting at 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return &StubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Publishing twice at the same instant
// gives versions equal timestamps, so tests that depend on timestamp order
// advance between uploads.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testIDSpace seeds the deterministic public IDs handed out in tests.
var testIDSpace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

// StubIDGenerator returns reproducible UUIDs: the n-th call always yields the
// same value, so public extension IDs are stable across test runs.
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return uuid.NewSHA1(testIDSpace, []byte(strconv.Itoa(g.n))).String()
}
