package perchdb

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// The header page (well-known id 0) maps index names to root page ids. Every
// tree writes its record when it first acquires a root and rewrites it on
// every root change, so reopening a database file finds every index again.
//
// Layout: [recordCount: 4][records: name(32) + rootPageID(4) each ...]
// [checksum: 8, xxhash64 of everything before it, at the page tail].
const (
	headerNameSize   = 32
	headerRecordSize = headerNameSize + 4
	headerCountOff   = 0
	headerRecordOff  = 4
	headerSumOff     = PageSize - 8

	// MaxIndexes is how many index records fit in the header page.
	MaxIndexes = (headerSumOff - headerRecordOff) / headerRecordSize
)

func headerRecordCount(p *Page) int {
	return int(binary.LittleEndian.Uint32(p.data[headerCountOff:]))
}

func headerFindRecord(p *Page, name string) int {
	count := headerRecordCount(p)
	for i := 0; i < count; i++ {
		off := headerRecordOff + i*headerRecordSize
		stored := p.data[off : off+headerNameSize]
		if headerNameEqual(stored, name) {
			return i
		}
	}
	return -1
}

func headerNameEqual(stored []byte, name string) bool {
	if len(name) > headerNameSize {
		return false
	}
	for i := 0; i < headerNameSize; i++ {
		var c byte
		if i < len(name) {
			c = name[i]
		}
		if stored[i] != c {
			return false
		}
	}
	return true
}

func headerChecksum(p *Page) uint64 {
	return xxhash.Sum64(p.data[:headerSumOff])
}

func headerSealChecksum(p *Page) {
	binary.LittleEndian.PutUint64(p.data[headerSumOff:], headerChecksum(p))
}

// headerGetRoot returns the persisted root for name. ok is false when the
// header has no record for the index.
func headerGetRoot(pool *BufferPoolManager, name string) (PageID, bool, error) {
	page := pool.FetchPage(HeaderPageID)
	if page == nil {
		return InvalidPageID, false, ErrPoolExhausted
	}
	page.RLatch()
	defer func() {
		page.RUnlatch()
		pool.UnpinPage(HeaderPageID, false)
	}()
	i := headerFindRecord(page, name)
	if i < 0 {
		return InvalidPageID, false, nil
	}
	off := headerRecordOff + i*headerRecordSize + headerNameSize
	return PageID(binary.LittleEndian.Uint32(page.data[off:])), true, nil
}

// headerSetRoot inserts or updates name's root record and reseals the
// checksum.
func headerSetRoot(pool *BufferPoolManager, name string, root PageID) error {
	if len(name) > headerNameSize {
		return ErrIndexNameTooLong
	}
	page := pool.FetchPage(HeaderPageID)
	if page == nil {
		return ErrPoolExhausted
	}
	page.WLatch()
	defer func() {
		page.WUnlatch()
		pool.UnpinPage(HeaderPageID, true)
	}()
	i := headerFindRecord(page, name)
	if i < 0 {
		count := headerRecordCount(page)
		if count >= MaxIndexes {
			return ErrTooManyIndexes
		}
		i = count
		off := headerRecordOff + i*headerRecordSize
		for j := 0; j < headerNameSize; j++ {
			var c byte
			if j < len(name) {
				c = name[j]
			}
			page.data[off+j] = c
		}
		binary.LittleEndian.PutUint32(page.data[headerCountOff:], uint32(count+1))
	}
	off := headerRecordOff + i*headerRecordSize + headerNameSize
	binary.LittleEndian.PutUint32(page.data[off:], uint32(root))
	headerSealChecksum(page)
	return nil
}

// headerVerify checks the stored checksum against the record area. A fresh
// (all-zero) header page is sealed in place.
func headerVerify(pool *BufferPoolManager) error {
	page := pool.FetchPage(HeaderPageID)
	if page == nil {
		return ErrPoolExhausted
	}
	page.WLatch()
	defer func() {
		page.WUnlatch()
		pool.UnpinPage(HeaderPageID, true)
	}()
	stored := binary.LittleEndian.Uint64(page.data[headerSumOff:])
	if stored == 0 && headerRecordCount(page) == 0 {
		headerSealChecksum(page)
		return nil
	}
	if stored != headerChecksum(page) {
		return ErrCorruption
	}
	return nil
}
