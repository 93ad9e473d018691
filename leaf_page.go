package perchdb

import "encoding/binary"

// leafNode interprets a page as a leaf: sorted unique keys mapped to record
// ids, threaded to the right sibling through nextPageID.
type leafNode struct {
	page *Page
}

func (n leafNode) init(id, parent PageID, maxSize int) {
	n.page.setPageType(leafPageType)
	n.page.setNodeSize(0)
	n.page.setStoredID(id)
	n.page.setParentID(parent)
	n.page.setNodeMaxSize(maxSize)
	n.setNextPageID(InvalidPageID)
}

func (n leafNode) id() PageID { return n.page.storedID() }
func (n leafNode) parent() PageID { return n.page.parentID() }
func (n leafNode) size() int { return n.page.nodeSize() }
func (n leafNode) maxSize() int { return n.page.nodeMaxSize() }
func (n leafNode) minSize() int { return leafMinSize(n.maxSize()) }
func (n leafNode) isRoot() bool { return n.page.isRootNode() }
func (n leafNode) setSize(sz int) { n.page.setNodeSize(sz) }
func (n leafNode) setParent(id PageID) { n.page.setParentID(id) }

func (n leafNode) nextPageID() PageID {
	return PageID(binary.LittleEndian.Uint32(n.page.data[offNextPageID:]))
}

func (n leafNode) setNextPageID(id PageID) {
	binary.LittleEndian.PutUint32(n.page.data[offNextPageID:], uint32(id))
}

func leafEntryOff(i int) int { return leafHeaderSize + i*leafEntrySize }

func (n leafNode) keyAt(i int) Key {
	return Key(binary.LittleEndian.Uint64(n.page.data[leafEntryOff(i):]))
}

func (n leafNode) ridAt(i int) RID {
	off := leafEntryOff(i) + 8
	return RID{
		PageID: PageID(binary.LittleEndian.Uint32(n.page.data[off:])),
		Slot:   binary.LittleEndian.Uint32(n.page.data[off+4:]),
	}
}

func (n leafNode) setEntry(i int, key Key, rid RID) {
	off := leafEntryOff(i)
	binary.LittleEndian.PutUint64(n.page.data[off:], uint64(key))
	binary.LittleEndian.PutUint32(n.page.data[off+8:], uint32(rid.PageID))
	binary.LittleEndian.PutUint32(n.page.data[off+12:], rid.Slot)
}

// copyLeafEntry moves one packed entry within or across leaves.
func copyLeafEntry(dst leafNode, di int, src leafNode, si int) {
	copy(dst.page.data[leafEntryOff(di):leafEntryOff(di+1)],
		src.page.data[leafEntryOff(si):leafEntryOff(si+1)])
}

// firstGE returns the index of the first entry with key >= k, or size if all
// keys are smaller.
func (n leafNode) firstGE(key Key, cmp Comparator) int {
	lo, hi := 0, n.size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.keyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// lookup binary-searches for key and returns its record id.
func (n leafNode) lookup(key Key, cmp Comparator) (RID, bool) {
	i := n.firstGE(key, cmp)
	if i < n.size() && cmp(n.keyAt(i), key) == 0 {
		return n.ridAt(i), true
	}
	return RID{}, false
}

// insert places (key, rid) in sorted position. Returns false if the key is
// already present; the tree holds unique keys, so the existing value is left
// untouched.
func (n leafNode) insert(key Key, rid RID, cmp Comparator) bool {
	i := n.firstGE(key, cmp)
	sz := n.size()
	if i < sz && cmp(n.keyAt(i), key) == 0 {
		return false
	}
	for j := sz; j > i; j-- {
		copyLeafEntry(n, j, n, j-1)
	}
	n.setEntry(i, key, rid)
	n.setSize(sz + 1)
	return true
}

// remove deletes key's entry if present.
func (n leafNode) remove(key Key, cmp Comparator) bool {
	i := n.firstGE(key, cmp)
	sz := n.size()
	if i == sz || cmp(n.keyAt(i), key) != 0 {
		return false
	}
	for j := i; j < sz-1; j++ {
		copyLeafEntry(n, j, n, j+1)
	}
	n.setSize(sz - 1)
	return true
}

// moveAllTo empties this leaf into recipient (its left sibling) and splices
// this leaf out of the sibling chain.
func (n leafNode) moveAllTo(recipient leafNode) {
	sz, rsz := n.size(), recipient.size()
	for i := 0; i < sz; i++ {
		copyLeafEntry(recipient, rsz+i, n, i)
	}
	recipient.setSize(rsz + sz)
	recipient.setNextPageID(n.nextPageID())
	n.setSize(0)
}

// moveLastHalfTo moves entries [splitAt, size) into the fresh right sibling.
// The caller threads the sibling chain.
func (n leafNode) moveLastHalfTo(recipient leafNode, splitAt int) {
	sz := n.size()
	for i := splitAt; i < sz; i++ {
		copyLeafEntry(recipient, i-splitAt, n, i)
	}
	recipient.setSize(sz - splitAt)
	n.setSize(splitAt)
}

// moveFirstToEndOf shifts this leaf's smallest entry onto the tail of its
// left sibling. The caller refreshes the parent separator afterwards.
func (n leafNode) moveFirstToEndOf(recipient leafNode) {
	rsz := recipient.size()
	copyLeafEntry(recipient, rsz, n, 0)
	recipient.setSize(rsz + 1)
	sz := n.size()
	for j := 0; j < sz-1; j++ {
		copyLeafEntry(n, j, n, j+1)
	}
	n.setSize(sz - 1)
}

// moveLastToFrontOf shifts this leaf's largest entry onto the front of its
// right sibling.
func (n leafNode) moveLastToFrontOf(recipient leafNode) {
	rsz := recipient.size()
	for j := rsz; j > 0; j-- {
		copyLeafEntry(recipient, j, recipient, j-1)
	}
	copyLeafEntry(recipient, 0, n, n.size()-1)
	recipient.setSize(rsz + 1)
	n.setSize(n.size() - 1)
}
