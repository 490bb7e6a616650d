package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Sequence(t *testing.T) {
	p := New(time.Second, 60*time.Second)

	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60, 60}
	for i, w := range want {
		assert.Equal(t, w*time.Second, p.Next(), "attempt %d", i+1)
	}

	p.Reset()
	assert.Equal(t, time.Second, p.Next())
	assert.Equal(t, 2*time.Second, p.Peek())
}

func TestNew_Bounds(t *testing.T) {
	tests := []struct {
		name    string
		min     time.Duration
		max     time.Duration
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"defaults", 0, 0, DefaultMin, DefaultMax},
		{"negative", -time.Second, -time.Second, DefaultMin, DefaultMax},
		{"max below min", 5 * time.Second, time.Second, 5 * time.Second, 5 * time.Second},
		{"custom", 10 * time.Millisecond, 40 * time.Millisecond, 10 * time.Millisecond, 40 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.min, tt.max)
			assert.Equal(t, tt.wantMin, p.Next())
			var last time.Duration
			for i := 0; i < 20; i++ {
				last = p.Next()
			}
			assert.Equal(t, tt.wantMax, last)
		})
	}
}

func TestPolicy_WaitCancelled(t *testing.T) {
	p := New(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delay, err := p.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, time.Hour, delay)
}

func TestPolicy_Wait(t *testing.T) {
	p := New(time.Millisecond, 2*time.Millisecond)

	delay, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, delay)
}

func TestPolicy_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("delays stay within bounds and never shrink", prop.ForAll(
		func(minMS, factor, attempts int) bool {
			min := time.Duration(minMS) * time.Millisecond
			p := New(min, min*time.Duration(factor))

			prev := time.Duration(0)
			for i := 0; i < attempts; i++ {
				d := p.Next()
				if d < min || d > min*time.Duration(factor) || d < prev {
					return false
				}
				prev = d
			}
			return true
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 100),
		gen.IntRange(0, 40),
	))

	properties.Property("reset returns to min", prop.ForAll(
		func(attempts int) bool {
			p := New(time.Second, time.Minute)
			for i := 0; i < attempts; i++ {
				p.Next()
			}
			p.Reset()
			return p.Peek() == time.Second
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
