package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	t.Parallel()

	var c RealClock
	before := time.Now()
	assert.False(t, c.Now().Before(before))

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}

func TestMockClock_Advance(t *testing.T) {
	t.Parallel()

	c := NewMockClock(epoch)
	assert.Equal(t, epoch, c.Now())
	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())
}

func TestMockTicker_Fires(t *testing.T) {
	t.Parallel()

	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Second)
	require.Equal(t, 1, c.Tickers())

	c.Advance(500 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-tk.C():
		assert.Equal(t, epoch.Add(time.Second), got)
	default:
		t.Fatal("ticker did not fire")
	}

	// a long jump delivers one tick and schedules the next period after it
	c.Advance(5 * time.Second)
	<-tk.C()
	c.Advance(999 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired twice for one period")
	default:
	}
}

func TestMockTicker_Stop(t *testing.T) {
	t.Parallel()

	c := NewMockClock(epoch)
	tk := c.NewTicker(time.Second)
	tk.Stop()
	c.Advance(2 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
