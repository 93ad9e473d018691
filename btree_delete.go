package perchdb

// Remove deletes key's entry. Removing an absent key is a no-op. Pages
// emptied by merges are handed back to the buffer pool only after every
// latch on the descent path has been released, so a concurrent descender
// that let go of its latches higher up can never land on a freed page.
func (t *BTree) Remove(key Key, txn *Transaction) error {
	t.rootLatch.Lock()
	txn.addToPageSet(nil)
	if t.rootID == InvalidPageID {
		t.releaseWLatches(txn)
		return nil
	}
	page := t.findLeaf(key, opDelete, txn)
	if page == nil {
		return ErrPoolExhausted
	}
	err := t.deleteEntry(page, key, txn)
	page.WUnlatch()
	t.pool.UnpinPage(page.ID(), true)
	for _, pid := range txn.takeDeletedPages() {
		t.pool.DeletePage(pid)
	}
	return err
}

// deleteEntry removes key's entry from the node on page and rebalances
// upward as needed. The page and all still-unsafe ancestors are write-latched
// by the descent; recursion into the parent therefore touches only latched
// pages.
func (t *BTree) deleteEntry(page *Page, key Key, txn *Transaction) error {
	if page.isLeaf() {
		if !asLeaf(page).remove(key, t.cmp) && page.nodeSize() >= t.minSizeOf(page) {
			// Absent key, no underflow: nothing to rebalance.
			t.releaseWLatches(txn)
			return nil
		}
	} else {
		asInternal(page).removeKey(key, t.cmp)
	}
	size := page.nodeSize()

	if page.isRootNode() {
		switch {
		case !page.isLeaf() && size == 1:
			// The root routes to a single child: promote it.
			inner := asInternal(page)
			child := t.pool.FetchPage(inner.childAt(0))
			if child == nil {
				t.releaseWLatches(txn)
				return ErrPoolExhausted
			}
			child.setParentID(InvalidPageID)
			t.rootID = child.storedID()
			t.updateRootRecord()
			t.releaseWLatches(txn)
			t.pool.UnpinPage(child.ID(), true)
			txn.addDeletedPage(page.ID())
		case page.isLeaf() && size == 0:
			t.rootID = InvalidPageID
			t.updateRootRecord()
			txn.addDeletedPage(page.ID())
			t.releaseWLatches(txn)
		default:
			t.releaseWLatches(txn)
		}
		return nil
	}

	if size >= t.minSizeOf(page) {
		t.releaseWLatches(txn)
		return nil
	}

	// Underflow: borrow from or merge with a sibling. Prefer the left
	// sibling when one exists.
	parentPage := t.pool.FetchPage(page.parentID())
	if parentPage == nil {
		t.releaseWLatches(txn)
		return ErrPoolExhausted
	}
	parent := asInternal(parentPage)
	idx := parent.valueIndex(page.storedID())
	sibIdx := idx + 1
	if idx > 0 {
		sibIdx = idx - 1
	}
	sibPage := t.pool.FetchPage(parent.childAt(sibIdx))
	if sibPage == nil {
		t.releaseWLatches(txn)
		t.pool.UnpinPage(parentPage.ID(), false)
		return ErrPoolExhausted
	}
	sibPage.WLatch()

	// The separator between the two participants sits above the right one.
	sepIdx := idx
	if idx == 0 {
		sepIdx = 1
	}
	sepKey := parent.keyAt(sepIdx)

	fits := page.nodeMaxSize()
	if page.isLeaf() {
		fits = page.nodeMaxSize() - 1
	}
	if sibPage.nodeSize()+size <= fits {
		return t.coalesce(page, sibPage, parentPage, idx, sepKey, txn)
	}
	err := t.redistribute(page, sibPage, parentPage, idx, sepKey)
	t.releaseWLatches(txn)
	sibPage.WUnlatch()
	t.pool.UnpinPage(sibPage.ID(), true)
	t.pool.UnpinPage(parentPage.ID(), true)
	return err
}

// coalesce folds the right participant into the left, splices the leaf
// chain, and recursively deletes the separator from the parent. The emptied
// page is queued on the transaction for deferred deletion.
func (t *BTree) coalesce(page, sibPage, parentPage *Page, idx int, sepKey Key, txn *Transaction) error {
	left, right := sibPage, page
	if idx == 0 {
		left, right = page, sibPage
	}
	var moveErr error
	if page.isLeaf() {
		asLeaf(right).moveAllTo(asLeaf(left))
	} else {
		moveErr = asInternal(right).moveAllTo(asInternal(left), sepKey, t.pool)
	}
	txn.addDeletedPage(right.storedID())

	err := t.deleteEntry(parentPage, sepKey, txn)
	if moveErr != nil {
		err = moveErr
	}
	sibPage.WUnlatch()
	t.pool.UnpinPage(sibPage.ID(), true)
	t.pool.UnpinPage(parentPage.ID(), true)
	return err
}

// redistribute borrows one entry through the parent: the left sibling's last
// entry moves to the front of the node, or the right sibling's first entry
// moves to its end, and the separator above the right participant is
// refreshed to its new lower bound.
func (t *BTree) redistribute(page, sibPage, parentPage *Page, idx int, sepKey Key) error {
	parent := asInternal(parentPage)
	if idx > 0 {
		// Sibling on the left lends its largest entry.
		if page.isLeaf() {
			asLeaf(sibPage).moveLastToFrontOf(asLeaf(page))
			parent.setKeyAt(idx, asLeaf(page).keyAt(0))
			return nil
		}
		if err := asInternal(sibPage).moveLastToFrontOf(asInternal(page), sepKey, t.pool); err != nil {
			return err
		}
		parent.setKeyAt(idx, asInternal(page).keyAt(0))
		return nil
	}
	// Sibling on the right lends its smallest entry.
	if page.isLeaf() {
		asLeaf(sibPage).moveFirstToEndOf(asLeaf(page))
		parent.setKeyAt(idx+1, asLeaf(sibPage).keyAt(0))
		return nil
	}
	if err := asInternal(sibPage).moveFirstToEndOf(asInternal(page), sepKey, t.pool); err != nil {
		return err
	}
	parent.setKeyAt(idx+1, asInternal(sibPage).keyAt(0))
	return nil
}

func (t *BTree) minSizeOf(page *Page) int {
	if page.isLeaf() {
		return leafMinSize(page.nodeMaxSize())
	}
	return internalMinSize(page.nodeMaxSize())
}
