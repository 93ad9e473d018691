package perchdb

// Iterator is a forward cursor over the leaf chain. It pins and read-latches
// at most one leaf at a time; advancing across a leaf boundary latches the
// next leaf before releasing the current one. Close releases whatever the
// iterator still holds.
type Iterator struct {
	pool *BufferPoolManager
	page *Page // pinned, read-latched leaf; nil once closed or born empty
	idx  int
}

// Begin positions an iterator at the smallest key in the tree.
func (t *BTree) Begin() (*Iterator, error) {
	return t.descendEdge(true)
}

// BeginAt positions an iterator at the first entry with key >= k.
func (t *BTree) BeginAt(key Key) (*Iterator, error) {
	t.rootLatch.RLock()
	if t.rootID == InvalidPageID {
		t.rootLatch.RUnlock()
		return &Iterator{pool: t.pool}, nil
	}
	page := t.findLeaf(key, opSearch, nil)
	if page == nil {
		return nil, ErrPoolExhausted
	}
	it := &Iterator{pool: t.pool, page: page, idx: asLeaf(page).firstGE(key, t.cmp)}
	if err := it.skipExhausted(); err != nil {
		return nil, err
	}
	return it, nil
}

// End positions an iterator one past the largest key: slot == size on the
// rightmost leaf.
func (t *BTree) End() (*Iterator, error) {
	it, err := t.descendEdge(false)
	if err != nil || it.page == nil {
		return it, err
	}
	it.idx = asLeaf(it.page).size()
	return it, nil
}

// descendEdge read-crabs down the leftmost or rightmost spine.
func (t *BTree) descendEdge(leftmost bool) (*Iterator, error) {
	t.rootLatch.RLock()
	if t.rootID == InvalidPageID {
		t.rootLatch.RUnlock()
		return &Iterator{pool: t.pool}, nil
	}
	page := t.pool.FetchPage(t.rootID)
	if page == nil {
		t.rootLatch.RUnlock()
		return nil, ErrPoolExhausted
	}
	page.RLatch()
	t.rootLatch.RUnlock()
	for !page.isLeaf() {
		inner := asInternal(page)
		at := 0
		if !leftmost {
			at = inner.size() - 1
		}
		child := t.pool.FetchPage(inner.childAt(at))
		if child == nil {
			page.RUnlatch()
			t.pool.UnpinPage(page.ID(), false)
			return nil, ErrPoolExhausted
		}
		child.RLatch()
		page.RUnlatch()
		t.pool.UnpinPage(page.ID(), false)
		page = child
	}
	return &Iterator{pool: t.pool, page: page}, nil
}

// IsEnd is true when the iterator has run off the last entry of the
// rightmost leaf.
func (it *Iterator) IsEnd() bool {
	if it.page == nil {
		return true
	}
	leaf := asLeaf(it.page)
	return it.idx == leaf.size() && leaf.nextPageID() == InvalidPageID
}

// Key returns the key under the cursor. Only valid when !IsEnd().
func (it *Iterator) Key() Key { return asLeaf(it.page).keyAt(it.idx) }

// Value returns the record id under the cursor. Only valid when !IsEnd().
func (it *Iterator) Value() RID { return asLeaf(it.page).ridAt(it.idx) }

// Next advances the cursor one entry, hopping the sibling chain when the
// current leaf is exhausted.
func (it *Iterator) Next() error {
	if it.IsEnd() {
		return nil
	}
	it.idx++
	return it.skipExhausted()
}

// skipExhausted hops to the next leaf while the cursor sits past the current
// leaf's entries. The next leaf is latched before the current one is let go.
func (it *Iterator) skipExhausted() error {
	for {
		leaf := asLeaf(it.page)
		if it.idx < leaf.size() || leaf.nextPageID() == InvalidPageID {
			return nil
		}
		next := it.pool.FetchPage(leaf.nextPageID())
		if next == nil {
			it.Close()
			return ErrPoolExhausted
		}
		next.RLatch()
		it.page.RUnlatch()
		it.pool.UnpinPage(it.page.ID(), false)
		it.page = next
		it.idx = 0
	}
}

// Close releases the iterator's leaf. Safe to call twice.
func (it *Iterator) Close() {
	if it.page == nil {
		return
	}
	it.page.RUnlatch()
	it.pool.UnpinPage(it.page.ID(), false)
	it.page = nil
}
