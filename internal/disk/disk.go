// Package disk provides block-level page I/O for the database file: page
// allocation and reuse, positioned reads and writes, and a small read-image
// cache that absorbs re-reads of recently evicted pages.
package disk

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
	"golang.org/x/sys/unix"
)

// Manager owns the database file. All page ids are dense file offsets:
// page i lives at byte i*pageSize.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	nextID   uint32
	free     []uint32 // deallocated ids, reused before the file grows

	cache *freelru.LRU[uint32, []byte] // nil when disabled
}

func hashPageID(id uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], id)
	return uint32(xxhash.Sum64(b[:]))
}

// Open opens or creates the database file. A cacheEntries value below 2
// disables the read cache.
func Open(path string, pageSize, cacheEntries int) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	m := &Manager{
		file:     f,
		pageSize: pageSize,
		nextID:   uint32((st.Size() + int64(pageSize) - 1) / int64(pageSize)),
	}
	if cacheEntries > 1 {
		cache, err := freelru.New[uint32, []byte](uint32(cacheEntries), hashPageID)
		if err != nil {
			f.Close()
			return nil, err
		}
		m.cache = cache
	}
	return m, nil
}

// AllocatePage hands out a page id, preferring ids freed by DeallocatePage
// over growing the file.
func (m *Manager) AllocatePage() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.free); n > 0 {
		id := m.free[n-1]
		m.free = m.free[:n-1]
		return id
	}
	id := m.nextID
	m.nextID++
	return id
}

// DeallocatePage returns a page id to the free pool for reuse.
func (m *Manager) DeallocatePage(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free = append(m.free, id)
	if m.cache != nil {
		m.cache.Remove(id)
	}
}

// ReadPage fills buf with the page's content. Pages past the written extent
// read as zeros, matching a freshly allocated page.
func (m *Manager) ReadPage(id uint32, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache != nil {
		if img, ok := m.cache.Get(id); ok {
			copy(buf, img)
			return nil
		}
	}
	n, err := unix.Pread(int(m.file.Fd()), buf, int64(id)*int64(m.pageSize))
	if err != nil {
		return err
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	if m.cache != nil {
		img := make([]byte, len(buf))
		copy(img, buf)
		m.cache.Add(id, img)
	}
	return nil
}

// WritePage persists the page's content and refreshes the read cache.
func (m *Manager) WritePage(id uint32, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := unix.Pwrite(int(m.file.Fd()), buf, int64(id)*int64(m.pageSize)); err != nil {
		return err
	}
	if m.cache != nil {
		img := make([]byte, len(buf))
		copy(img, buf)
		m.cache.Add(id, img)
	}
	return nil
}

// Sync flushes file data to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return unix.Fdatasync(int(m.file.Fd()))
}

// NumPages reports how many pages the file spans, including freed ones.
func (m *Manager) NumPages() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID
}

// Close syncs and closes the file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := unix.Fdatasync(int(m.file.Fd()))
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	m.file = nil
	return err
}
