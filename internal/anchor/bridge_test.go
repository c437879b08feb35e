package anchor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorpoint/internal/spatial"
)

func TestBridge_LatestWins(t *testing.T) {
	b := NewBridge()
	_, ok := b.ReadLatest()
	assert.False(t, ok)

	a := spatial.Translation(r3.Vec{X: 1})
	c := spatial.Translation(r3.Vec{X: 2})
	b.Write(a, true)
	b.Write(c, true)

	got, ok := b.ReadLatest()
	require.True(t, ok)
	assert.Equal(t, c, got)

	b.Write(spatial.Pose{}, false)
	_, ok = b.ReadLatest()
	assert.False(t, ok)
}

func TestBridge_AvailabilityOnChangeOnly(t *testing.T) {
	b := NewBridge()
	hit := spatial.Identity()

	b.Write(hit, true)
	b.Write(hit, true)
	b.Write(hit, true)
	assert.True(t, b.HitAvailable())
	assert.True(t, <-b.Available())

	select {
	case v := <-b.Available():
		t.Fatalf("unexpected availability %v without a change", v)
	default:
	}

	b.Clear()
	assert.False(t, b.HitAvailable())
	assert.False(t, <-b.Available())
	assert.Equal(t, uint64(2), b.Stats().Flips)
}

func TestBridge_SlowReaderSeesNewest(t *testing.T) {
	b := NewBridge()
	hit := spatial.Identity()

	b.Write(hit, true)
	b.Write(hit, false)
	b.Write(hit, true)
	b.Write(hit, false)

	assert.False(t, <-b.Available())
	assert.Equal(t, uint64(3), b.Stats().Dropped)
	assert.Equal(t, uint64(4), b.Stats().Flips)
}

func TestBridge_ConcurrentReaders(t *testing.T) {
	b := NewBridge()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if p, ok := b.ReadLatest(); ok {
					assert.NoError(t, spatial.Validate(p))
				}
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		b.Write(spatial.Translation(r3.Vec{X: float64(i)}), i%3 != 0)
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(1000), b.Stats().Writes)
}
