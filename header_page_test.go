package perchdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRecords(t *testing.T) {
	t.Parallel()
	db, _ := setup(t)
	pool := db.Pool()

	_, ok, err := headerGetRoot(pool, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, headerSetRoot(pool, "orders", 7))
	require.NoError(t, headerSetRoot(pool, "users", 9))
	root, ok, err := headerGetRoot(pool, "orders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, PageID(7), root)

	// Updates overwrite in place.
	require.NoError(t, headerSetRoot(pool, "orders", 11))
	root, _, err = headerGetRoot(pool, "orders")
	require.NoError(t, err)
	assert.Equal(t, PageID(11), root)

	assert.NoError(t, headerVerify(pool))
}

func TestHeaderNameTooLong(t *testing.T) {
	t.Parallel()
	db, _ := setup(t)
	long := make([]byte, headerNameSize+1)
	for i := range long {
		long[i] = 'a'
	}
	err := headerSetRoot(db.Pool(), string(long), 1)
	assert.ErrorIs(t, err, ErrIndexNameTooLong)
}

func TestHeaderChecksumDetectsCorruption(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "perch.db")
	db, err := Open(path, WithDetectionInterval(0))
	require.NoError(t, err)
	tree, err := db.OpenIndex("t")
	require.NoError(t, err)
	txn := db.Transactions().Begin(RepeatableRead)
	_, err = tree.Insert(1, ridFor(1), txn)
	require.NoError(t, err)
	db.Transactions().Commit(txn)
	require.NoError(t, db.Close())

	// Flip a byte inside the header's record area on disk.
	corruptFileByte(t, path, int64(headerRecordOff))

	_, err = Open(path, WithDetectionInterval(0))
	assert.ErrorIs(t, err, ErrCorruption)
}
