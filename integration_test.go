package perchdb

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMutualExclusionUnderContention hammers one row with incrementing
// writers. If two incompatible locks were ever granted at once, the final
// counter would show a lost update.
func TestMutualExclusionUnderContention(t *testing.T) {
	t.Parallel()
	lm, tm := newLockEnv(0)
	rid := RID{PageID: 1, Slot: 0}

	var counter int64
	var inCritical atomic.Int32
	const (
		workers = 8
		rounds  = 50
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				txn := tm.Begin(RepeatableRead)
				require.NoError(t, lm.LockTable(txn, LockIntentionExclusive, 1))
				require.NoError(t, lm.LockRow(txn, LockExclusive, 1, rid))

				assert.Equal(t, int32(1), inCritical.Add(1), "two X holders at once")
				counter++
				inCritical.Add(-1)

				tm.Commit(txn)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(workers*rounds), counter)
}

// TestExecutorStyleDataFlow follows the spec's data flow: executors take a
// table lock, then a row lock per row, and only then touch the index.
func TestExecutorStyleDataFlow(t *testing.T) {
	t.Parallel()
	db, tree := setup(t, WithDetectionInterval(10*time.Millisecond))
	db.LockManager().StartDetection()

	const tableOID = 7

	write := func(txn *Transaction, k Key) error {
		if err := db.LockManager().LockTable(txn, LockIntentionExclusive, tableOID); err != nil {
			return err
		}
		rid := ridFor(k)
		if err := db.LockManager().LockRow(txn, LockExclusive, tableOID, rid); err != nil {
			return err
		}
		_, err := tree.Insert(k, rid, txn)
		return err
	}
	read := func(txn *Transaction, k Key) (RID, bool, error) {
		if err := db.LockManager().LockTable(txn, LockIntentionShared, tableOID); err != nil {
			return RID{}, false, err
		}
		rid := ridFor(k)
		if err := db.LockManager().LockRow(txn, LockShared, tableOID, rid); err != nil {
			return RID{}, false, err
		}
		got, found := tree.GetValue(k, txn)
		return got, found, nil
	}

	writer := db.Transactions().Begin(RepeatableRead)
	for k := Key(0); k < 20; k++ {
		require.NoError(t, write(writer, k))
	}
	db.Transactions().Commit(writer)

	// Two repeatable-read readers see identical values across repeated reads.
	var wg sync.WaitGroup
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn := db.Transactions().Begin(RepeatableRead)
			defer db.Transactions().Commit(txn)
			for k := Key(0); k < 20; k++ {
				first, found, err := read(txn, k)
				require.NoError(t, err)
				require.True(t, found)
				again, found, err := read(txn, k)
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, first, again, "repeated read of key %d changed", k)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, tree.Check())
}

// TestRowLockCoherence verifies the row/table coherence property: a granted
// row lock always has a supporting table lock on the same transaction.
func TestRowLockCoherence(t *testing.T) {
	t.Parallel()
	lm, tm := newLockEnv(0)
	rid := RID{PageID: 2, Slot: 3}

	txn := tm.Begin(RepeatableRead)
	require.NoError(t, lm.LockTable(txn, LockSharedIntentionExclusive, 4))
	require.NoError(t, lm.LockRow(txn, LockExclusive, 4, rid))
	require.NoError(t, lm.LockRow(txn, LockShared, 4, RID{PageID: 2, Slot: 4}))

	assert.True(t, txn.holdsTableLock(4, LockExclusive, LockIntentionExclusive, LockSharedIntentionExclusive))
	assert.Contains(t, txn.ExclusiveRowLocks()[4], rid)
	assert.Contains(t, txn.SharedRowLocks()[4], RID{PageID: 2, Slot: 4})
	tm.Commit(txn)
	assert.Empty(t, txn.ExclusiveRowLocks())
	assert.Empty(t, txn.SharedRowLocks())
}
