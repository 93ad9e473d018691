package perchdb

import (
	"encoding/binary"
	"sync"
)

const (
	// PageSize is the fixed size of every on-disk and in-memory page.
	PageSize = 4096

	// HeaderPageID is the well-known page holding index-name to root-page
	// records. It is allocated when a database file is created.
	HeaderPageID PageID = 0

	internalPageType uint32 = 1
	leafPageType     uint32 = 2

	// Shared page header. All integers are little-endian.
	// [type: 4][lsn: 4][size: 4][maxSize: 4][parent: 4][pageID: 4]
	offPageType   = 0
	offLSN        = 4
	offSize       = 8
	offMaxSize    = 12
	offParent     = 16
	offPageID     = 20
	offNextPageID = 24 // leaves only

	internalHeaderSize = 24
	leafHeaderSize     = 28

	leafEntrySize     = 16 // key(8) + rid(8)
	internalEntrySize = 12 // key(8) + child(4)

	// DefaultLeafMaxSize and DefaultInternalMaxSize fill a 4KB page. The
	// internal fanout reserves one slot of slack: a full internal page
	// briefly holds maxSize+1 children while a split is in flight.
	DefaultLeafMaxSize     = (PageSize - leafHeaderSize) / leafEntrySize
	DefaultInternalMaxSize = (PageSize-internalHeaderSize)/internalEntrySize - 1
)

// PageID identifies a page within the database file.
type PageID uint32

// InvalidPageID is the NONE sentinel for root and sibling pointers.
const InvalidPageID = ^PageID(0)

// RID names a record: the heap page holding it and the slot within that page.
type RID struct {
	PageID PageID
	Slot   uint32
}

// Key is the fixed-width key type indexed by the tree.
type Key int64

// Comparator orders keys. Negative means a < b, zero equal, positive a > b.
type Comparator func(a, b Key) int

// DefaultComparator orders keys numerically.
func DefaultComparator(a, b Key) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Page is a buffer pool frame: a fixed-size byte buffer plus the bookkeeping
// the pool needs to share it safely. The pool owns every Page; borrowers hold
// one between FetchPage/NewPage and UnpinPage, and must take the page latch
// before touching data.
type Page struct {
	data     [PageSize]byte
	id       PageID
	pinCount int32
	dirty    bool
	latch    sync.RWMutex
}

// ID returns the page's identity, InvalidPageID for an unused frame.
func (p *Page) ID() PageID { return p.id }

// Data exposes the raw page payload. Callers must hold the page latch.
func (p *Page) Data() []byte { return p.data[:] }

// PinCount returns the current pin count. Used by tests and the pool's
// debug checker; racy outside the pool mutex.
func (p *Page) PinCount() int32 { return p.pinCount }

// IsDirty reports whether the frame has unwritten changes.
func (p *Page) IsDirty() bool { return p.dirty }

func (p *Page) RLatch() { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
func (p *Page) WLatch() { p.latch.Lock() }
func (p *Page) WUnlatch() { p.latch.Unlock() }

// reset wipes the frame for reuse by a different page.
func (p *Page) reset() {
	p.data = [PageSize]byte{}
	p.id = InvalidPageID
	p.pinCount = 0
	p.dirty = false
}

// Shared header accessors. These interpret the first bytes of the payload and
// are valid for both node kinds; callers hold the page latch.

func (p *Page) pageType() uint32 { return binary.LittleEndian.Uint32(p.data[offPageType:]) }
func (p *Page) isLeaf() bool { return p.pageType() == leafPageType }
func (p *Page) nodeSize() int { return int(binary.LittleEndian.Uint32(p.data[offSize:])) }
func (p *Page) nodeMaxSize() int { return int(binary.LittleEndian.Uint32(p.data[offMaxSize:])) }
func (p *Page) parentID() PageID { return PageID(binary.LittleEndian.Uint32(p.data[offParent:])) }
func (p *Page) storedID() PageID { return PageID(binary.LittleEndian.Uint32(p.data[offPageID:])) }
func (p *Page) isRootNode() bool { return p.parentID() == InvalidPageID }

func (p *Page) setPageType(t uint32) { binary.LittleEndian.PutUint32(p.data[offPageType:], t) }
func (p *Page) setNodeSize(n int) { binary.LittleEndian.PutUint32(p.data[offSize:], uint32(n)) }
func (p *Page) setNodeMaxSize(n int) { binary.LittleEndian.PutUint32(p.data[offMaxSize:], uint32(n)) }
func (p *Page) setParentID(id PageID) {
	binary.LittleEndian.PutUint32(p.data[offParent:], uint32(id))
}
func (p *Page) setStoredID(id PageID) {
	binary.LittleEndian.PutUint32(p.data[offPageID:], uint32(id))
}
