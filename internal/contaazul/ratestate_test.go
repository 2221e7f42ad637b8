package contaazul

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateStatePenalizeDoubles(t *testing.T) {
	rs := NewRateState(300 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, rs.Delay())

	rs.Penalize()
	assert.Equal(t, 600*time.Millisecond, rs.Delay())

	rs.Penalize()
	assert.Equal(t, 1200*time.Millisecond, rs.Delay())
}

func TestRateStateWaitUsesCurrentDelay(t *testing.T) {
	var slept []time.Duration
	rs := NewRateState(300 * time.Millisecond)
	rs.SetSleep(func(d time.Duration) { slept = append(slept, d) })

	rs.Wait()
	rs.Penalize()
	rs.Wait()
	rs.Wait()

	// The penalty persists for the rest of the run, it never decays.
	assert.Equal(t, []time.Duration{
		300 * time.Millisecond,
		600 * time.Millisecond,
		600 * time.Millisecond,
	}, slept)
}
