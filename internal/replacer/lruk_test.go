package replacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUKEvictOrder(t *testing.T) {
	t.Parallel()
	r := New(8, 2)

	// Frames 1..3 accessed once each: all have infinite k-distance, so the
	// earliest first access loses.
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(3)
	for _, id := range []FrameID{1, 2, 3} {
		r.SetEvictable(id, true)
	}
	assert.Equal(t, 3, r.Size())

	victim, ok := r.Evict()
	assert.True(t, ok)
	assert.Equal(t, FrameID(1), victim)
	victim, ok = r.Evict()
	assert.True(t, ok)
	assert.Equal(t, FrameID(2), victim)
}

func TestLRUKPrefersColdFrames(t *testing.T) {
	t.Parallel()
	r := New(8, 2)

	// Frame 1 is hot (two accesses), frame 2 cold (one access). Cold frames
	// have infinite backward distance and go first.
	r.RecordAccess(1)
	r.RecordAccess(1)
	r.RecordAccess(2)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	assert.True(t, ok)
	assert.Equal(t, FrameID(2), victim)
	victim, ok = r.Evict()
	assert.True(t, ok)
	assert.Equal(t, FrameID(1), victim)
	_, ok = r.Evict()
	assert.False(t, ok)
}

func TestLRUKKDistance(t *testing.T) {
	t.Parallel()
	r := New(8, 2)

	// Both frames have k accesses; the one whose k-th most recent access is
	// older has the larger backward distance.
	r.RecordAccess(1) // t=1
	r.RecordAccess(2) // t=2
	r.RecordAccess(2) // t=3
	r.RecordAccess(1) // t=4
	// distances: frame1 -> clock-1, frame2 -> clock-2: frame1 is the victim.
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	assert.True(t, ok)
	assert.Equal(t, FrameID(1), victim)
}

func TestLRUKPinnedFramesAreSafe(t *testing.T) {
	t.Parallel()
	r := New(8, 2)

	r.RecordAccess(1)
	r.RecordAccess(2)
	r.SetEvictable(1, false)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	assert.True(t, ok)
	assert.Equal(t, FrameID(2), victim)
	_, ok = r.Evict()
	assert.False(t, ok, "pinned frame must never be evicted")

	r.SetEvictable(1, true)
	victim, ok = r.Evict()
	assert.True(t, ok)
	assert.Equal(t, FrameID(1), victim)
}

func TestLRUKRemove(t *testing.T) {
	t.Parallel()
	r := New(8, 2)

	r.RecordAccess(1)
	r.SetEvictable(1, true)
	r.Remove(1)
	assert.Equal(t, 0, r.Size())
	_, ok := r.Evict()
	assert.False(t, ok)
}
