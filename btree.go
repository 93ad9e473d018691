package perchdb

import "sync"

// BTree is a disk-paged B+Tree index mapping fixed-width keys to record ids.
// All node pages are borrowed from the shared buffer pool; concurrent readers
// and writers coordinate through latch crabbing: a child's latch is acquired
// before the parent's is released, so the descent path stays consistent while
// other operations split or merge elsewhere in the tree.
type BTree struct {
	name            string
	pool            *BufferPoolManager
	cmp             Comparator
	leafMaxSize     int
	internalMaxSize int

	// rootLatch guards rootID transitions: tree creation, new root after a
	// split, root collapse after a delete. Writers hold it until the descent
	// proves the root cannot change.
	rootLatch sync.RWMutex
	rootID    PageID
}

type treeOp int

const (
	opSearch treeOp = iota
	opInsert
	opDelete
)

// NewBTree binds an index to the shared buffer pool. If the header page
// already names the index, its persisted root is adopted; otherwise the tree
// starts empty and publishes its root on first insert.
func NewBTree(name string, pool *BufferPoolManager, cmp Comparator, leafMaxSize, internalMaxSize int) (*BTree, error) {
	t := &BTree{
		name:            name,
		pool:            pool,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootID:          InvalidPageID,
	}
	root, ok, err := headerGetRoot(pool, name)
	if err != nil {
		return nil, err
	}
	if ok {
		t.rootID = root
	}
	return t, nil
}

// IsEmpty reports whether the tree holds no entries.
func (t *BTree) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootID == InvalidPageID
}

// RootPageID returns the current root page, InvalidPageID when empty.
func (t *BTree) RootPageID() PageID {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootID
}

// GetValue looks up key and returns its record id.
func (t *BTree) GetValue(key Key, txn *Transaction) (RID, bool) {
	t.rootLatch.RLock()
	if t.rootID == InvalidPageID {
		t.rootLatch.RUnlock()
		return RID{}, false
	}
	page := t.findLeaf(key, opSearch, txn)
	if page == nil {
		return RID{}, false
	}
	rid, found := asLeaf(page).lookup(key, t.cmp)
	page.RUnlatch()
	t.pool.UnpinPage(page.ID(), false)
	return rid, found
}

// findLeaf descends from the root to the leaf covering key.
//
// Readers crab with read latches and keep at most two pages latched at any
// instant. Writers crab with write latches and park every still-latched
// ancestor on the transaction's page set; ancestors are released as soon as
// the current node is safe for the operation. The caller must hold rootLatch
// (read for opSearch, write otherwise); findLeaf releases it by the same
// rules: directly for readers, through the page set's nil sentinel for
// writers.
func (t *BTree) findLeaf(key Key, op treeOp, txn *Transaction) *Page {
	page := t.pool.FetchPage(t.rootID)
	if page == nil {
		if op == opSearch {
			t.rootLatch.RUnlock()
		} else {
			t.releaseWLatches(txn)
		}
		return nil
	}
	if op == opSearch {
		page.RLatch()
		t.rootLatch.RUnlock()
	} else {
		page.WLatch()
		if t.isSafe(page, op) {
			t.releaseWLatches(txn)
		}
	}
	for !page.isLeaf() {
		inner := asInternal(page)
		childID := inner.childAt(inner.childIndex(key, t.cmp))
		child := t.pool.FetchPage(childID)
		if child == nil {
			if op == opSearch {
				page.RUnlatch()
				t.pool.UnpinPage(page.ID(), false)
			} else {
				page.WUnlatch()
				t.pool.UnpinPage(page.ID(), false)
				t.releaseWLatches(txn)
			}
			return nil
		}
		if op == opSearch {
			child.RLatch()
			page.RUnlatch()
			t.pool.UnpinPage(page.ID(), false)
		} else {
			child.WLatch()
			txn.addToPageSet(page)
			if t.isSafe(child, op) {
				t.releaseWLatches(txn)
			}
		}
		page = child
	}
	return page
}

// isSafe reports whether a mutation below page cannot propagate into it:
// an insert target with room for one more entry, or a delete target above
// its underflow threshold. A safe node lets every ancestor latch go.
func (t *BTree) isSafe(page *Page, op treeOp) bool {
	size := page.nodeSize()
	if op == opInsert {
		if page.isLeaf() {
			return size < page.nodeMaxSize()-1
		}
		return size < page.nodeMaxSize()
	}
	// opDelete. The root underflows only when it is about to change
	// identity: an emptied leaf root or an internal root left with a
	// single child.
	if page.isRootNode() {
		if page.isLeaf() {
			return size > 1
		}
		return size > 2
	}
	if page.isLeaf() {
		return size > leafMinSize(page.nodeMaxSize())
	}
	return size > internalMinSize(page.nodeMaxSize())
}

// releaseWLatches unwinds the write-crabbing trail: every parked ancestor is
// unlatched and unpinned in descent order. The nil sentinel stands for the
// tree-level root latch.
func (t *BTree) releaseWLatches(txn *Transaction) {
	if txn == nil {
		return
	}
	for _, page := range txn.pageSet {
		if page == nil {
			t.rootLatch.Unlock()
		} else {
			page.WUnlatch()
			t.pool.UnpinPage(page.ID(), false)
		}
	}
	txn.pageSet = txn.pageSet[:0]
}

// updateRootRecord persists the current root in the header page.
func (t *BTree) updateRootRecord() {
	if err := headerSetRoot(t.pool, t.name, t.rootID); err != nil {
		t.pool.logger.Error("header page update failed", "index", t.name, "error", err)
	}
}
