package perchdb

import "encoding/binary"

// internalNode interprets a page as an internal node: n child pointers
// separated by n-1 keys, with the entry-0 key slot unused by lookups.
type internalNode struct {
	page *Page
}

func (n internalNode) init(id, parent PageID, maxSize int) {
	n.page.setPageType(internalPageType)
	n.page.setNodeSize(0)
	n.page.setStoredID(id)
	n.page.setParentID(parent)
	n.page.setNodeMaxSize(maxSize)
}

func (n internalNode) id() PageID { return n.page.storedID() }
func (n internalNode) parent() PageID { return n.page.parentID() }
func (n internalNode) size() int { return n.page.nodeSize() }
func (n internalNode) maxSize() int { return n.page.nodeMaxSize() }
func (n internalNode) minSize() int { return internalMinSize(n.maxSize()) }
func (n internalNode) isRoot() bool { return n.page.isRootNode() }
func (n internalNode) setSize(sz int) { n.page.setNodeSize(sz) }
func (n internalNode) setParent(id PageID) { n.page.setParentID(id) }

func internalEntryOff(i int) int { return internalHeaderSize + i*internalEntrySize }

func (n internalNode) keyAt(i int) Key {
	return Key(binary.LittleEndian.Uint64(n.page.data[internalEntryOff(i):]))
}

func (n internalNode) setKeyAt(i int, key Key) {
	binary.LittleEndian.PutUint64(n.page.data[internalEntryOff(i):], uint64(key))
}

func (n internalNode) childAt(i int) PageID {
	return PageID(binary.LittleEndian.Uint32(n.page.data[internalEntryOff(i)+8:]))
}

func (n internalNode) setChildAt(i int, id PageID) {
	binary.LittleEndian.PutUint32(n.page.data[internalEntryOff(i)+8:], uint32(id))
}

func copyInternalEntry(dst internalNode, di int, src internalNode, si int) {
	copy(dst.page.data[internalEntryOff(di):internalEntryOff(di+1)],
		src.page.data[internalEntryOff(si):internalEntryOff(si+1)])
}

// childIndex returns the index of the child pointer covering key: the largest
// i with key[i] <= key, or 0 when key precedes key[1].
func (n internalNode) childIndex(key Key, cmp Comparator) int {
	lo, hi := 1, n.size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.keyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// valueIndex locates a child pointer, -1 if absent.
func (n internalNode) valueIndex(child PageID) int {
	for i := 0; i < n.size(); i++ {
		if n.childAt(i) == child {
			return i
		}
	}
	return -1
}

// setNewRoot seeds a fresh root with exactly two children split out of the
// old root.
func (n internalNode) setNewRoot(oldChild PageID, key Key, newChild PageID) {
	n.setChildAt(0, oldChild)
	n.setKeyAt(1, key)
	n.setChildAt(1, newChild)
	n.setSize(2)
}

// insertNodeAfter places (key, newChild) immediately after oldChild's entry.
func (n internalNode) insertNodeAfter(oldChild PageID, key Key, newChild PageID) {
	at := n.valueIndex(oldChild) + 1
	sz := n.size()
	for j := sz; j > at; j-- {
		copyInternalEntry(n, j, n, j-1)
	}
	n.setKeyAt(at, key)
	n.setChildAt(at, newChild)
	n.setSize(sz + 1)
}

// removeKey deletes the (separator, child) entry covering key.
func (n internalNode) removeKey(key Key, cmp Comparator) {
	n.removeAt(n.childIndex(key, cmp))
}

func (n internalNode) removeAt(i int) {
	sz := n.size()
	for j := i; j < sz-1; j++ {
		copyInternalEntry(n, j, n, j+1)
	}
	n.setSize(sz - 1)
}

// adoptChildren re-parents the children in entries [from, to) to this node.
// The crabbing protocol write-latches the subtree's ancestors, so no reader
// can hold these children while their parent pointer moves.
func (n internalNode) adoptChildren(pool *BufferPoolManager, from, to int) error {
	for i := from; i < to; i++ {
		child := pool.FetchPage(n.childAt(i))
		if child == nil {
			return ErrPoolExhausted
		}
		child.setParentID(n.id())
		pool.UnpinPage(child.ID(), true)
	}
	return nil
}

// moveAllTo empties this node into recipient (its left sibling). middleKey is
// the separator lifted from the parent; it becomes the boundary key in front
// of the migrated block so the left subtree's upper bound survives the merge.
func (n internalNode) moveAllTo(recipient internalNode, middleKey Key, pool *BufferPoolManager) error {
	n.setKeyAt(0, middleKey)
	sz, rsz := n.size(), recipient.size()
	for i := 0; i < sz; i++ {
		copyInternalEntry(recipient, rsz+i, n, i)
	}
	recipient.setSize(rsz + sz)
	n.setSize(0)
	return recipient.adoptChildren(pool, rsz, rsz+sz)
}

// moveLastHalfTo moves entries [splitAt, size) into the fresh right sibling
// created by a split. The key at splitAt rides along in the recipient's
// entry-0 slot; the caller lifts it into the parent as the new separator.
func (n internalNode) moveLastHalfTo(recipient internalNode, splitAt int, pool *BufferPoolManager) error {
	sz := n.size()
	for i := splitAt; i < sz; i++ {
		copyInternalEntry(recipient, i-splitAt, n, i)
	}
	recipient.setSize(sz - splitAt)
	n.setSize(splitAt)
	return recipient.adoptChildren(pool, 0, sz-splitAt)
}

// moveFirstToEndOf lends this node's first child to its left sibling.
// middleKey is the parent separator between the two; it covers the moved
// child in its new home. The caller stores keyAt(0) — the shifted-down old
// key[1] — back into the parent as the new separator.
func (n internalNode) moveFirstToEndOf(recipient internalNode, middleKey Key, pool *BufferPoolManager) error {
	rsz := recipient.size()
	recipient.setKeyAt(rsz, middleKey)
	recipient.setChildAt(rsz, n.childAt(0))
	recipient.setSize(rsz + 1)
	sz := n.size()
	for j := 0; j < sz-1; j++ {
		copyInternalEntry(n, j, n, j+1)
	}
	n.setSize(sz - 1)
	return recipient.adoptChildren(pool, rsz, rsz+1)
}

// moveLastToFrontOf lends this node's last child to its right sibling.
// middleKey is the parent separator; it shifts down to cover the recipient's
// old first child. The lent entry's key rides into entry 0 unused; its value
// — this node's old last key — is the caller's new parent separator.
func (n internalNode) moveLastToFrontOf(recipient internalNode, middleKey Key, pool *BufferPoolManager) error {
	rsz := recipient.size()
	for j := rsz; j > 0; j-- {
		copyInternalEntry(recipient, j, recipient, j-1)
	}
	recipient.setKeyAt(1, middleKey)
	sz := n.size()
	recipient.setKeyAt(0, n.keyAt(sz-1))
	recipient.setChildAt(0, n.childAt(sz-1))
	recipient.setSize(rsz + 1)
	n.setSize(sz - 1)
	return recipient.adoptChildren(pool, 0, 1)
}
