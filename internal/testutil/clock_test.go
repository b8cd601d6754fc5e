package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStubClock_Advance(t *testing.T) {
	c := FixedClock()
	start := c.Now()
	c.Advance(time.Minute)
	if got := c.Now().Sub(start); got != time.Minute {
		t.Errorf("Advance moved clock by %v, want 1m", got)
	}
}

func TestStubIDGenerator(t *testing.T) {
	a, b := NewStubIDGenerator(), NewStubIDGenerator()

	first := a.New()
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("New() = %q is not a UUID: %v", first, err)
	}
	if second := a.New(); second == first {
		t.Error("consecutive IDs are equal")
	}
	if b.New() != first {
		t.Error("fresh generators disagree on the first ID")
	}
}
