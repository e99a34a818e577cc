package clock

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdjust(t *testing.T) {
	tests := []struct {
		name   string
		remote uint64
		skew   int64
		now    uint64
		want   uint64
	}{
		{"no skew", 500, 0, 1000, 500},
		{"remote ahead", 1500, 600, 1000, 900},
		{"remote behind", 300, -200, 1000, 500},
		{"clamped to now", 2000, 0, 1000, 1000},
		{"never negative", 100, 500, 1000, 0},
		{"remote before skew", 0, 1, 1000, 0},
		{"remote above max int64", math.MaxInt64 + 100, 50, math.MaxUint64, math.MaxInt64 + 50},
		{"large negative skew clamped to now", math.MaxUint64 - 10, -100, 1000, 1000},
		{"min int64 skew", 5, math.MinInt64, math.MaxUint64, 5 + 1<<63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Adjust(tt.remote, tt.skew, tt.now))
		})
	}
}

func TestUnadjust(t *testing.T) {
	assert.Equal(t, uint64(0), Unadjust(0, 100))
	assert.Equal(t, uint64(1100), Unadjust(1000, 100))
	assert.Equal(t, uint64(0), Unadjust(50, -100))
}

func TestSameEdit(t *testing.T) {
	assert.True(t, SameEdit(42, 42))
	assert.False(t, SameEdit(42, 41))
}

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		name     string
		st       EditState
		sameEdit bool
		adjusted uint64
		want     bool
	}{
		{"newer remote edit", EditState{LastEdited: 100}, false, 200, false},
		{"older remote edit", EditState{LastEdited: 300}, false, 200, true},
		{"equal edit time", EditState{LastEdited: 200}, false, 200, false},
		{"repeat without local edit", EditState{LastEdited: 200, LastEditedFromRemote: 250}, true, 200, false},
		{"repeat after local edit", EditState{LastEdited: 300, LastEditedFromRemote: 250}, true, 200, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldIgnore(tt.st, tt.sameEdit, tt.adjusted))
		})
	}
}

func TestManual(t *testing.T) {
	m := NewManual(1000)
	assert.Equal(t, uint64(1000), m.Now())

	m.Advance(2 * time.Millisecond)
	assert.Equal(t, uint64(3000), m.Now())

	m.Set(10)
	assert.Equal(t, uint64(10), m.Now())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Advance(time.Microsecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(20), m.Now())
}

func TestConversions(t *testing.T) {
	assert.Equal(t, uint64(1500), Usec(1500*time.Microsecond))
	assert.Equal(t, uint64(0), Usec(-time.Second))
	assert.InDelta(t, 0.25, Seconds(250000), 1e-6)
	assert.Greater(t, System{}.Now(), uint64(0))
}
