package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AfterFunc(t *testing.T) {
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	c := NewFake(start)

	fired := 0
	c.AfterFunc(time.Minute, func() { fired++ })
	assert.Equal(t, 1, c.Pending())

	c.Advance(30 * time.Second)
	assert.Equal(t, 0, fired, "expected timer not to fire before its deadline")

	c.Advance(30 * time.Second)
	assert.Equal(t, 1, fired, "expected timer to fire at its deadline")
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, start.Add(time.Minute), c.Now())
}

func TestFake_StopTimer(t *testing.T) {
	c := NewFake(time.Now())

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop(), "expected Stop to cancel an armed timer")
	assert.False(t, timer.Stop(), "expected second Stop to report nothing cancelled")

	c.Advance(time.Hour)
	assert.False(t, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFake_Ticker(t *testing.T) {
	c := NewFake(time.Now())
	ticker := c.NewTicker(15 * time.Second)

	c.Advance(15 * time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("expected a tick after one interval")
	}

	ticker.Stop()
	c.Advance(15 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("expected no tick after Stop")
	default:
	}
}

func TestFake_After(t *testing.T) {
	c := NewFake(time.Now())
	ch := c.After(time.Second)

	select {
	case <-ch:
		t.Fatal("expected no value before the deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("expected a value at the deadline")
	}
}
