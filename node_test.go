package perchdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeafNodeInsertLookupRemove(t *testing.T) {
	t.Parallel()
	leaf := asLeaf(&Page{})
	leaf.init(7, InvalidPageID, 8)

	assert.Equal(t, PageID(7), leaf.id())
	assert.Equal(t, InvalidPageID, leaf.nextPageID())
	assert.True(t, leaf.isRoot())
	assert.Equal(t, 4, leaf.minSize())

	for _, k := range []Key{30, 10, 20} {
		assert.True(t, leaf.insert(k, ridFor(k), DefaultComparator))
	}
	assert.Equal(t, 3, leaf.size())
	assert.Equal(t, Key(10), leaf.keyAt(0))
	assert.Equal(t, Key(20), leaf.keyAt(1))
	assert.Equal(t, Key(30), leaf.keyAt(2))

	assert.False(t, leaf.insert(20, ridFor(20), DefaultComparator), "duplicate key")
	assert.False(t, leaf.insert(20, RID{PageID: 9, Slot: 9}, DefaultComparator), "duplicate key, other value")

	rid, found := leaf.lookup(20, DefaultComparator)
	assert.True(t, found)
	assert.Equal(t, ridFor(20), rid)
	_, found = leaf.lookup(25, DefaultComparator)
	assert.False(t, found)

	assert.True(t, leaf.remove(20, DefaultComparator))
	assert.False(t, leaf.remove(20, DefaultComparator))
	assert.Equal(t, 2, leaf.size())
	assert.Equal(t, Key(30), leaf.keyAt(1))
}

func TestLeafNodeFirstGE(t *testing.T) {
	t.Parallel()
	leaf := asLeaf(&Page{})
	leaf.init(1, InvalidPageID, 16)
	for _, k := range []Key{10, 20, 30, 40} {
		require.True(t, leaf.insert(k, ridFor(k), DefaultComparator))
	}
	assert.Equal(t, 0, leaf.firstGE(5, DefaultComparator))
	assert.Equal(t, 0, leaf.firstGE(10, DefaultComparator))
	assert.Equal(t, 1, leaf.firstGE(11, DefaultComparator))
	assert.Equal(t, 3, leaf.firstGE(40, DefaultComparator))
	assert.Equal(t, 4, leaf.firstGE(41, DefaultComparator))
}

func TestLeafNodeMovers(t *testing.T) {
	t.Parallel()
	left := asLeaf(&Page{})
	left.init(1, InvalidPageID, 8)
	right := asLeaf(&Page{})
	right.init(2, InvalidPageID, 8)

	for _, k := range []Key{1, 2, 3, 4, 5, 6} {
		require.True(t, left.insert(k, ridFor(k), DefaultComparator))
	}

	// Split: upper half moves right.
	left.moveLastHalfTo(right, 3)
	assert.Equal(t, 3, left.size())
	assert.Equal(t, 3, right.size())
	assert.Equal(t, Key(4), right.keyAt(0))

	// Borrow from the left sibling.
	left.moveLastToFrontOf(right)
	assert.Equal(t, 2, left.size())
	assert.Equal(t, Key(3), right.keyAt(0))
	assert.Equal(t, ridFor(3), right.ridAt(0))

	// Borrow back from the right sibling.
	right.moveFirstToEndOf(left)
	assert.Equal(t, 3, left.size())
	assert.Equal(t, Key(3), left.keyAt(2))
	assert.Equal(t, Key(4), right.keyAt(0))

	// Merge: right empties into left and the chain is spliced.
	right.setNextPageID(77)
	right.moveAllTo(left)
	assert.Equal(t, 6, left.size())
	assert.Equal(t, 0, right.size())
	assert.Equal(t, PageID(77), left.nextPageID())
	for i := 0; i < 6; i++ {
		assert.Equal(t, Key(i+1), left.keyAt(i))
	}
}

func TestInternalNodeBasics(t *testing.T) {
	t.Parallel()
	inner := asInternal(&Page{})
	inner.init(5, InvalidPageID, 4)

	inner.setNewRoot(10, 100, 20)
	assert.Equal(t, 2, inner.size())
	assert.Equal(t, PageID(10), inner.childAt(0))
	assert.Equal(t, PageID(20), inner.childAt(1))
	assert.Equal(t, Key(100), inner.keyAt(1))

	inner.insertNodeAfter(20, 200, 30)
	assert.Equal(t, 3, inner.size())
	assert.Equal(t, PageID(30), inner.childAt(2))
	assert.Equal(t, Key(200), inner.keyAt(2))

	// Keys below key[1] route to child 0; otherwise the greatest key <= k.
	assert.Equal(t, 0, inner.childIndex(50, DefaultComparator))
	assert.Equal(t, 1, inner.childIndex(100, DefaultComparator))
	assert.Equal(t, 1, inner.childIndex(150, DefaultComparator))
	assert.Equal(t, 2, inner.childIndex(200, DefaultComparator))
	assert.Equal(t, 2, inner.childIndex(999, DefaultComparator))

	assert.Equal(t, 1, inner.valueIndex(20))
	assert.Equal(t, -1, inner.valueIndex(99))

	inner.removeKey(200, DefaultComparator)
	assert.Equal(t, 2, inner.size())
	assert.Equal(t, -1, inner.valueIndex(30))
}

func TestInternalChildIndexFirstSlotUnused(t *testing.T) {
	t.Parallel()
	inner := asInternal(&Page{})
	inner.init(5, InvalidPageID, 8)
	inner.setNewRoot(1, 10, 2)
	inner.insertNodeAfter(2, 20, 3)
	inner.insertNodeAfter(3, 30, 4)

	// Whatever the unused slot-0 key holds must not affect routing.
	inner.setKeyAt(0, 999)
	assert.Equal(t, 0, inner.childIndex(-5, DefaultComparator))
	assert.Equal(t, 0, inner.childIndex(9, DefaultComparator))
	assert.Equal(t, 1, inner.childIndex(15, DefaultComparator))
	assert.Equal(t, 3, inner.childIndex(35, DefaultComparator))
}
