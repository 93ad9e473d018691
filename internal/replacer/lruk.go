// Package replacer implements the LRU-K frame replacement policy used by the
// buffer pool.
package replacer

import (
	"math"
	"sync"
)

// FrameID indexes a buffer pool frame.
type FrameID int32

// LRUK evicts the evictable frame whose backward k-distance is largest,
// where backward k-distance is the age of a frame's k-th most recent access.
// Frames with fewer than k recorded accesses have infinite distance; ties
// among them fall back to plain LRU on the earliest recorded access.
type LRUK struct {
	mu     sync.Mutex
	k      int
	clock  uint64
	frames map[FrameID]*frameInfo
}

type frameInfo struct {
	history   []uint64 // access timestamps, oldest first, capped at k
	evictable bool
}

// New creates a replacer tracking up to numFrames frames with history depth k.
func New(numFrames, k int) *LRUK {
	if k < 1 {
		k = 1
	}
	return &LRUK{
		k:      k,
		frames: make(map[FrameID]*frameInfo, numFrames),
	}
}

// RecordAccess notes one access to the frame, creating its history on first
// touch. New frames start out non-evictable.
func (r *LRUK) RecordAccess(id FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	fi, ok := r.frames[id]
	if !ok {
		fi = &frameInfo{}
		r.frames[id] = fi
	}
	fi.history = append(fi.history, r.clock)
	if len(fi.history) > r.k {
		fi.history = fi.history[1:]
	}
}

// SetEvictable marks whether the frame may be chosen as a victim. The pool
// flips this with the pin count: pinned frames are never evictable.
func (r *LRUK) SetEvictable(id FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fi, ok := r.frames[id]; ok {
		fi.evictable = evictable
	}
}

// Remove drops the frame's history entirely (page deleted or frame reused).
func (r *LRUK) Remove(id FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.frames, id)
}

// Size returns the number of evictable frames.
func (r *LRUK) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, fi := range r.frames {
		if fi.evictable {
			n++
		}
	}
	return n
}

// Evict removes and returns the frame with the largest backward k-distance.
// Returns false when no frame is evictable.
func (r *LRUK) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		victim     FrameID
		found      bool
		bestDist   uint64
		bestOldest uint64 = math.MaxUint64
	)
	for id, fi := range r.frames {
		if !fi.evictable {
			continue
		}
		var dist uint64 = math.MaxUint64
		if len(fi.history) >= r.k {
			dist = r.clock - fi.history[len(fi.history)-r.k]
		}
		oldest := fi.history[0]
		better := false
		switch {
		case !found:
			better = true
		case dist > bestDist:
			better = true
		case dist == bestDist && oldest < bestOldest:
			better = true
		case dist == bestDist && oldest == bestOldest && id < victim:
			better = true
		}
		if better {
			victim, found = id, true
			bestDist, bestOldest = dist, oldest
		}
	}
	if !found {
		return 0, false
	}
	delete(r.frames, victim)
	return victim, true
}
