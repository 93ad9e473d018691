package perchdb

import (
	"sync"

	"perchdb/internal/disk"
	"perchdb/internal/replacer"
)

const (
	// DefaultPoolSize is the number of buffer frames.
	DefaultPoolSize = 256
	// DefaultReplacerK is the LRU-K history depth.
	DefaultReplacerK = 2
	// DefaultReadCacheSize is the disk manager's read-image cache capacity.
	DefaultReadCacheSize = 64
)

// BufferPoolManager shares a fixed set of page frames between the database
// file and its borrowers. A page is brought in pinned; every FetchPage and
// NewPage must be paired with an UnpinPage, and a frame can be recycled only
// when its pin count is zero. Replacement follows the LRU-K policy.
type BufferPoolManager struct {
	mu        sync.Mutex
	disk      *disk.Manager
	frames    []*Page
	pageTable map[PageID]replacer.FrameID
	freeList  []replacer.FrameID
	replacer  *replacer.LRUK
	logger    Logger
}

// NewBufferPoolManager wires poolSize frames over the disk manager.
func NewBufferPoolManager(poolSize int, dm *disk.Manager, k int, logger Logger) *BufferPoolManager {
	b := &BufferPoolManager{
		disk:      dm,
		frames:    make([]*Page, poolSize),
		pageTable: make(map[PageID]replacer.FrameID, poolSize),
		freeList:  make([]replacer.FrameID, 0, poolSize),
		replacer:  replacer.New(poolSize, k),
		logger:    logger,
	}
	for i := range b.frames {
		b.frames[i] = &Page{id: InvalidPageID}
		b.freeList = append(b.freeList, replacer.FrameID(i))
	}
	return b
}

// NewPage allocates a fresh page on disk and pins it into a frame. Returns
// nil when every frame is pinned.
func (b *BufferPoolManager) NewPage() *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	frame, ok := b.takeFrame()
	if !ok {
		b.logger.Warn("buffer pool exhausted", "op", "NewPage")
		return nil
	}
	id := PageID(b.disk.AllocatePage())
	page := b.frames[frame]
	page.reset()
	page.id = id
	page.pinCount = 1
	b.pageTable[id] = frame
	b.replacer.RecordAccess(frame)
	b.replacer.SetEvictable(frame, false)
	return page
}

// FetchPage pins the page, reading it from disk if it is not resident.
// Returns nil when every frame is pinned.
func (b *BufferPoolManager) FetchPage(id PageID) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	if frame, ok := b.pageTable[id]; ok {
		page := b.frames[frame]
		page.pinCount++
		b.replacer.RecordAccess(frame)
		b.replacer.SetEvictable(frame, false)
		return page
	}
	frame, ok := b.takeFrame()
	if !ok {
		b.logger.Warn("buffer pool exhausted", "op", "FetchPage", "page", uint32(id))
		return nil
	}
	page := b.frames[frame]
	page.reset()
	page.id = id
	page.pinCount = 1
	if err := b.disk.ReadPage(uint32(id), page.data[:]); err != nil {
		b.logger.Error("page read failed", "page", uint32(id), "error", err)
		page.reset()
		b.freeList = append(b.freeList, frame)
		return nil
	}
	b.pageTable[id] = frame
	b.replacer.RecordAccess(frame)
	b.replacer.SetEvictable(frame, false)
	return page
}

// UnpinPage drops one pin. dirty ORs into the frame's dirty flag; a page
// stays dirty until flushed no matter how later borrowers unpin it.
func (b *BufferPoolManager) UnpinPage(id PageID, dirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	frame, ok := b.pageTable[id]
	if !ok {
		return false
	}
	page := b.frames[frame]
	if page.pinCount <= 0 {
		return false
	}
	page.pinCount--
	page.dirty = page.dirty || dirty
	if page.pinCount == 0 {
		b.replacer.SetEvictable(frame, true)
	}
	return true
}

// DeletePage evicts the page from the pool and returns its id to the disk
// manager's free pool. Fails when the page is pinned.
func (b *BufferPoolManager) DeletePage(id PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	frame, ok := b.pageTable[id]
	if !ok {
		b.disk.DeallocatePage(uint32(id))
		return true
	}
	page := b.frames[frame]
	if page.pinCount > 0 {
		return false
	}
	delete(b.pageTable, id)
	b.replacer.Remove(frame)
	page.reset()
	b.freeList = append(b.freeList, frame)
	b.disk.DeallocatePage(uint32(id))
	return true
}

// FlushPage writes the page to disk regardless of its pin count.
func (b *BufferPoolManager) FlushPage(id PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	frame, ok := b.pageTable[id]
	if !ok {
		return false
	}
	return b.flushFrame(frame)
}

// FlushAll writes every resident page to disk.
func (b *BufferPoolManager) FlushAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, frame := range b.pageTable {
		b.flushFrame(frame)
	}
}

func (b *BufferPoolManager) flushFrame(frame replacer.FrameID) bool {
	page := b.frames[frame]
	if err := b.disk.WritePage(uint32(page.id), page.data[:]); err != nil {
		b.logger.Error("page write failed", "page", uint32(page.id), "error", err)
		return false
	}
	page.dirty = false
	return true
}

// CheckAllUnpinned reports whether every resident page has pin count zero.
// Debug helper for the tree's integrity checker.
func (b *BufferPoolManager) CheckAllUnpinned() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, frame := range b.pageTable {
		if b.frames[frame].pinCount != 0 {
			return false
		}
	}
	return true
}

// takeFrame hands out a free frame, evicting an LRU-K victim if none is
// free. Dirty victims are written back first.
func (b *BufferPoolManager) takeFrame() (replacer.FrameID, bool) {
	if n := len(b.freeList); n > 0 {
		frame := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return frame, true
	}
	frame, ok := b.replacer.Evict()
	if !ok {
		return 0, false
	}
	page := b.frames[frame]
	if page.dirty {
		if !b.flushFrame(frame) {
			// Put the victim back rather than lose its contents.
			b.replacer.RecordAccess(frame)
			b.replacer.SetEvictable(frame, true)
			return 0, false
		}
	}
	delete(b.pageTable, page.id)
	return frame, true
}
