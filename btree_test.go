package perchdb

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup opens a fresh database with tiny fanout so a handful of keys forces
// splits and merges.
func setup(t *testing.T, opts ...Option) (*DB, *BTree) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perch.db")
	base := []Option{
		WithLeafMaxSize(4),
		WithInternalMaxSize(4),
		WithPoolSize(64),
		WithDetectionInterval(0),
	}
	db, err := Open(path, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tree, err := db.OpenIndex("test")
	require.NoError(t, err)
	return db, tree
}

func ridFor(k Key) RID {
	return RID{PageID: PageID(k), Slot: uint32(k)}
}

func mustInsert(t *testing.T, db *DB, tree *BTree, keys ...Key) {
	t.Helper()
	txn := db.Transactions().Begin(RepeatableRead)
	defer db.Transactions().Commit(txn)
	for _, k := range keys {
		ok, err := tree.Insert(k, ridFor(k), txn)
		require.NoError(t, err)
		require.True(t, ok, "insert %d", k)
	}
}

func mustRemove(t *testing.T, db *DB, tree *BTree, keys ...Key) {
	t.Helper()
	txn := db.Transactions().Begin(RepeatableRead)
	defer db.Transactions().Commit(txn)
	for _, k := range keys {
		require.NoError(t, tree.Remove(k, txn))
	}
}

func TestBTreeBasicOps(t *testing.T) {
	t.Parallel()
	db, tree := setup(t)

	assert.True(t, tree.IsEmpty())
	mustInsert(t, db, tree, 42)
	assert.False(t, tree.IsEmpty())

	rid, found := tree.GetValue(42, nil)
	assert.True(t, found)
	assert.Equal(t, ridFor(42), rid)

	_, found = tree.GetValue(7, nil)
	assert.False(t, found)
}

func TestBTreeDuplicateInsert(t *testing.T) {
	t.Parallel()
	db, tree := setup(t)
	mustInsert(t, db, tree, 1, 2, 3)

	txn := db.Transactions().Begin(RepeatableRead)
	defer db.Transactions().Commit(txn)
	ok, err := tree.Insert(2, RID{PageID: 99, Slot: 99}, txn)
	require.NoError(t, err)
	assert.False(t, ok, "second insert of the same key must fail")

	// The original value survives.
	rid, found := tree.GetValue(2, nil)
	assert.True(t, found)
	assert.Equal(t, ridFor(2), rid)
	assert.NoError(t, tree.Check())
}

func TestBTreeRemoveAbsent(t *testing.T) {
	t.Parallel()
	db, tree := setup(t)
	mustInsert(t, db, tree, 1, 2, 3)
	mustRemove(t, db, tree, 10) // no-op
	mustRemove(t, db, tree, 2)
	mustRemove(t, db, tree, 2) // second remove is a no-op

	_, found := tree.GetValue(2, nil)
	assert.False(t, found)
	assert.NoError(t, tree.Check())
}

func TestBTreeSplitting(t *testing.T) {
	t.Parallel()
	db, tree := setup(t)

	for k := Key(0); k < 40; k++ {
		mustInsert(t, db, tree, k)
		require.NoError(t, tree.Check(), "after inserting %d", k)
	}
	for k := Key(0); k < 40; k++ {
		rid, found := tree.GetValue(k, nil)
		assert.True(t, found, "key %d", k)
		assert.Equal(t, ridFor(k), rid)
	}

	// With fanout 4 the root must have split more than once.
	rootPage := db.Pool().FetchPage(tree.RootPageID())
	require.NotNil(t, rootPage)
	assert.False(t, rootPage.isLeaf())
	db.Pool().UnpinPage(rootPage.ID(), false)
}

func TestBTreeScenarioSmall(t *testing.T) {
	t.Parallel()
	db, tree := setup(t)

	mustInsert(t, db, tree, 1, 2, 3, 4, 5)
	mustRemove(t, db, tree, 1, 5)

	for _, k := range []Key{2, 3, 4} {
		rid, found := tree.GetValue(k, nil)
		assert.True(t, found, "key %d", k)
		assert.Equal(t, ridFor(k), rid)
	}
	for _, k := range []Key{1, 5} {
		_, found := tree.GetValue(k, nil)
		assert.False(t, found, "key %d", k)
	}

	it, err := tree.BeginAt(2)
	require.NoError(t, err)
	defer it.Close()
	var slots []uint32
	for !it.IsEnd() {
		slots = append(slots, it.Value().Slot)
		require.NoError(t, it.Next())
	}
	assert.Equal(t, []uint32{2, 3, 4}, slots)
}

func TestBTreeScenarioMixed(t *testing.T) {
	t.Parallel()
	db, tree := setup(t)

	step := func(f func()) {
		f()
		require.NoError(t, tree.Check())
	}

	step(func() { mustInsert(t, db, tree, 2, 4, 15, 3, 7, 16, 18, 22, 20, 25, 11, 13) })
	step(func() { mustRemove(t, db, tree, 15, 16) })
	step(func() { mustInsert(t, db, tree, 8, 26) })
	step(func() { mustRemove(t, db, tree, 4) })
	step(func() { mustRemove(t, db, tree, 20) })
	step(func() { mustRemove(t, db, tree, 7) })
	step(func() { mustRemove(t, db, tree, 2, 8, 3, 26, 18, 22, 25, 11, 13) })

	assert.True(t, tree.IsEmpty())
	assert.Equal(t, InvalidPageID, tree.RootPageID())
}

func TestBTreeDrainToEmpty(t *testing.T) {
	t.Parallel()
	db, tree := setup(t)

	keys := []Key{9, 1, 7, 3, 5, 8, 2, 6, 4, 10, 12, 11}
	mustInsert(t, db, tree, keys...)
	for i, k := range keys {
		mustRemove(t, db, tree, k)
		require.NoError(t, tree.Check(), "after removing %d (step %d)", k, i)
	}
	assert.True(t, tree.IsEmpty())
	assert.Equal(t, InvalidPageID, tree.RootPageID())
	assert.True(t, db.Pool().CheckAllUnpinned())
}

func TestBTreeRandomLarge(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("large randomized run")
	}
	db, tree := setup(t, WithPoolSize(256))

	const n = 10000
	rng := rand.New(rand.NewSource(42))
	keys := rng.Perm(n)

	txn := db.Transactions().Begin(RepeatableRead)
	for _, k := range keys {
		ok, err := tree.Insert(Key(k), ridFor(Key(k)), txn)
		require.NoError(t, err)
		require.True(t, ok)
	}
	db.Transactions().Commit(txn)
	require.NoError(t, tree.Check())

	for k := 0; k < n; k++ {
		rid, found := tree.GetValue(Key(k), nil)
		require.True(t, found, "key %d", k)
		require.Equal(t, ridFor(Key(k)), rid)
	}

	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	txn = db.Transactions().Begin(RepeatableRead)
	for _, k := range keys {
		require.NoError(t, tree.Remove(Key(k), txn))
	}
	db.Transactions().Commit(txn)

	assert.True(t, tree.IsEmpty())
	require.NoError(t, tree.Check())
	assert.True(t, db.Pool().CheckAllUnpinned())
}

func TestBTreeConcurrentInsert(t *testing.T) {
	t.Parallel()
	db, tree := setup(t, WithPoolSize(256))

	const (
		workers   = 8
		perWorker = 250
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			txn := db.Transactions().Begin(RepeatableRead)
			defer db.Transactions().Commit(txn)
			for i := 0; i < perWorker; i++ {
				k := Key(w*perWorker + i)
				ok, err := tree.Insert(k, ridFor(k), txn)
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, tree.Check())
	for k := Key(0); k < workers*perWorker; k++ {
		rid, found := tree.GetValue(k, nil)
		require.True(t, found, "key %d", k)
		require.Equal(t, ridFor(k), rid)
	}
}

func TestBTreeConcurrentMixed(t *testing.T) {
	t.Parallel()
	db, tree := setup(t, WithPoolSize(256))

	// Preload the even keys, insert the odd keys while scanning concurrently,
	// then delete the even keys with two concurrent removers.
	for k := Key(0); k < 500; k += 2 {
		mustInsert(t, db, tree, k)
	}

	// Phase one: inserts race with scans. The iterator and the insert path
	// both move root-to-leaf then left-to-right, so they cannot deadlock.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		txn := db.Transactions().Begin(RepeatableRead)
		defer db.Transactions().Commit(txn)
		for k := Key(1); k < 500; k += 2 {
			_, err := tree.Insert(k, ridFor(k), txn)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			it, err := tree.Begin()
			if err != nil {
				continue
			}
			last := Key(-1)
			for !it.IsEnd() {
				k := it.Key()
				assert.Greater(t, k, last, "scan out of order")
				last = k
				if it.Next() != nil {
					break
				}
			}
			it.Close()
		}
	}()
	wg.Wait()

	// Phase two: concurrent removers drain the even keys.
	wg.Add(2)
	for part := 0; part < 2; part++ {
		go func(part int) {
			defer wg.Done()
			txn := db.Transactions().Begin(RepeatableRead)
			defer db.Transactions().Commit(txn)
			for k := Key(part * 250); k < Key((part+1)*250); k++ {
				if k%2 == 0 {
					assert.NoError(t, tree.Remove(k, txn))
				}
			}
		}(part)
	}
	wg.Wait()

	require.NoError(t, tree.Check())
	for k := Key(1); k < 500; k += 2 {
		_, found := tree.GetValue(k, nil)
		assert.True(t, found, "odd key %d", k)
	}
	for k := Key(0); k < 500; k += 2 {
		_, found := tree.GetValue(k, nil)
		assert.False(t, found, "even key %d", k)
	}
}

func TestBTreePersistsRootAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "perch.db")

	db, err := Open(path, WithLeafMaxSize(4), WithInternalMaxSize(4), WithDetectionInterval(0))
	require.NoError(t, err)
	tree, err := db.OpenIndex("orders")
	require.NoError(t, err)
	txn := db.Transactions().Begin(RepeatableRead)
	for k := Key(0); k < 30; k++ {
		ok, err := tree.Insert(k, ridFor(k), txn)
		require.NoError(t, err)
		require.True(t, ok)
	}
	db.Transactions().Commit(txn)
	require.NoError(t, db.Close())

	db, err = Open(path, WithLeafMaxSize(4), WithInternalMaxSize(4), WithDetectionInterval(0))
	require.NoError(t, err)
	defer db.Close()
	tree, err = db.OpenIndex("orders")
	require.NoError(t, err)
	for k := Key(0); k < 30; k++ {
		rid, found := tree.GetValue(k, nil)
		require.True(t, found, "key %d after reopen", k)
		require.Equal(t, ridFor(k), rid)
	}
	require.NoError(t, tree.Check())
}

func TestBTreeManyIndexes(t *testing.T) {
	t.Parallel()
	db, _ := setup(t)

	for i := 0; i < 5; i++ {
		tree, err := db.OpenIndex(fmt.Sprintf("idx-%d", i))
		require.NoError(t, err)
		mustInsert(t, db, tree, Key(i*100), Key(i*100+1))
	}
	for i := 0; i < 5; i++ {
		tree, err := db.OpenIndex(fmt.Sprintf("idx-%d", i))
		require.NoError(t, err)
		_, found := tree.GetValue(Key(i*100), nil)
		assert.True(t, found)
		_, found = tree.GetValue(Key(i*100+50), nil)
		assert.False(t, found)
	}
}
