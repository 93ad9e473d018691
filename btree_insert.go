package perchdb

// Insert adds (key, rid) to the tree. It returns false without error when the
// key is already present; the tree holds unique keys. ErrPoolExhausted is
// returned when the buffer pool cannot supply a page for a split.
func (t *BTree) Insert(key Key, rid RID, txn *Transaction) (bool, error) {
	t.rootLatch.Lock()
	txn.addToPageSet(nil)
	if t.rootID == InvalidPageID {
		err := t.startNewTree(key, rid)
		t.releaseWLatches(txn)
		return err == nil, err
	}

	page := t.findLeaf(key, opInsert, txn)
	if page == nil {
		return false, ErrPoolExhausted
	}
	leaf := asLeaf(page)

	// Room for one more: the write stays local to this leaf.
	if leaf.size() < leaf.maxSize()-1 {
		ok := leaf.insert(key, rid, t.cmp)
		t.releaseWLatches(txn)
		page.WUnlatch()
		t.pool.UnpinPage(page.ID(), ok)
		return ok, nil
	}

	// The leaf is at capacity. Insert, then split off a right sibling and
	// push the sibling's first key up as the new separator.
	if !leaf.insert(key, rid, t.cmp) {
		t.releaseWLatches(txn)
		page.WUnlatch()
		t.pool.UnpinPage(page.ID(), false)
		return false, nil
	}
	newPage := t.pool.NewPage()
	if newPage == nil {
		t.releaseWLatches(txn)
		page.WUnlatch()
		t.pool.UnpinPage(page.ID(), true)
		return false, ErrPoolExhausted
	}
	newLeaf := asLeaf(newPage)
	newLeaf.init(newPage.ID(), leaf.parent(), t.leafMaxSize)
	leaf.moveLastHalfTo(newLeaf, leaf.minSize())
	newLeaf.setNextPageID(leaf.nextPageID())
	leaf.setNextPageID(newPage.ID())

	err := t.insertIntoParent(page, newLeaf.keyAt(0), newPage, txn)
	t.releaseWLatches(txn)
	page.WUnlatch()
	t.pool.UnpinPage(page.ID(), true)
	t.pool.UnpinPage(newPage.ID(), true)
	return err == nil, err
}

// startNewTree publishes a single-leaf root holding the first entry. The
// caller holds the root latch.
func (t *BTree) startNewTree(key Key, rid RID) error {
	page := t.pool.NewPage()
	if page == nil {
		return ErrPoolExhausted
	}
	root := asLeaf(page)
	root.init(page.ID(), InvalidPageID, t.leafMaxSize)
	root.insert(key, rid, t.cmp)
	t.rootID = page.ID()
	t.updateRootRecord()
	t.pool.UnpinPage(page.ID(), true)
	return nil
}

// insertIntoParent threads a freshly split-off right node into the tree:
// a new root when the split node was the root, a plain insert when the parent
// has room, and a recursive parent split otherwise. The parent page is still
// write-latched by the descent whenever it can be touched here.
func (t *BTree) insertIntoParent(old *Page, key Key, newNode *Page, txn *Transaction) error {
	if old.isRootNode() {
		rootPage := t.pool.NewPage()
		if rootPage == nil {
			return ErrPoolExhausted
		}
		root := asInternal(rootPage)
		root.init(rootPage.ID(), InvalidPageID, t.internalMaxSize)
		root.setNewRoot(old.storedID(), key, newNode.storedID())
		old.setParentID(rootPage.ID())
		newNode.setParentID(rootPage.ID())
		t.rootID = rootPage.ID()
		t.pool.UnpinPage(rootPage.ID(), true)
		t.updateRootRecord()
		return nil
	}

	parentPage := t.pool.FetchPage(old.parentID())
	if parentPage == nil {
		return ErrPoolExhausted
	}
	parent := asInternal(parentPage)
	if parent.size() < parent.maxSize() {
		parent.insertNodeAfter(old.storedID(), key, newNode.storedID())
		t.releaseWLatches(txn)
		t.pool.UnpinPage(parentPage.ID(), true)
		return nil
	}

	// Parent is full: insert into the slack slot, split, and recurse. The
	// key at the split point rides into the new node's entry-0 slot and
	// becomes the separator one level up.
	parent.insertNodeAfter(old.storedID(), key, newNode.storedID())
	newParentPage := t.pool.NewPage()
	if newParentPage == nil {
		t.pool.UnpinPage(parentPage.ID(), true)
		return ErrPoolExhausted
	}
	newParent := asInternal(newParentPage)
	newParent.init(newParentPage.ID(), parent.parent(), t.internalMaxSize)
	if err := parent.moveLastHalfTo(newParent, internalMinSize(parent.maxSize()), t.pool); err != nil {
		t.pool.UnpinPage(parentPage.ID(), true)
		t.pool.UnpinPage(newParentPage.ID(), true)
		return err
	}
	err := t.insertIntoParent(parentPage, newParent.keyAt(0), newParentPage, txn)
	t.pool.UnpinPage(parentPage.ID(), true)
	t.pool.UnpinPage(newParentPage.ID(), true)
	return err
}
