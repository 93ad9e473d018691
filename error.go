package perchdb

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrDatabaseClosed = errors.New("database is closed")
	ErrCorruption     = errors.New("data corruption detected")
	ErrIndexNotFound  = errors.New("index not found")
	ErrIndexExists    = errors.New("index already exists")

	ErrIndexNameTooLong = errors.New("index name exceeds header record size")
	ErrTooManyIndexes   = errors.New("header page is out of index records")

	// ErrPoolExhausted is returned when every buffer frame is pinned and no
	// page can be brought in or created.
	ErrPoolExhausted = errors.New("buffer pool exhausted: all frames pinned")

	// ErrTxnAborted is the generic failure a lock waiter observes after the
	// deadlock detector (or another path) marked its transaction aborted.
	ErrTxnAborted = errors.New("transaction aborted")

	// ErrTxnTerminal signals a lock call on a transaction that has already
	// committed or aborted.
	ErrTxnTerminal = errors.New("transaction is already committed or aborted")
)

// AbortReason identifies why the lock manager terminated a transaction.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota + 1
	LockSharedOnReadUncommitted
	UpgradeConflict
	IncompatibleUpgrade
	AttemptedIntentionLockOnRow
	TableLockNotPresent
	TableUnlockedBeforeUnlockingRows
	AttemptedUnlockButNoLockHeld
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "lock acquisition on shrinking transaction"
	case LockSharedOnReadUncommitted:
		return "shared lock requested on read-uncommitted transaction"
	case UpgradeConflict:
		return "another transaction is already upgrading on this object"
	case IncompatibleUpgrade:
		return "requested mode is not a permitted upgrade"
	case AttemptedIntentionLockOnRow:
		return "intention lock requested on a row"
	case TableLockNotPresent:
		return "row lock requested without a table lock"
	case TableUnlockedBeforeUnlockingRows:
		return "table unlock attempted while row locks remain"
	case AttemptedUnlockButNoLockHeld:
		return "unlock attempted on an object that is not locked"
	default:
		return "unknown abort reason"
	}
}

// TxnAbortError is returned by lock manager calls that terminate the calling
// transaction. The transaction has already been moved to the Aborted state
// when the caller sees this error; the owner must roll back.
type TxnAbortError struct {
	TxnID  int64
	Reason AbortReason
}

func (e *TxnAbortError) Error() string {
	return fmt.Sprintf("txn %d aborted: %s", e.TxnID, e.Reason)
}

func abortTxn(txn *Transaction, reason AbortReason) error {
	txn.setState(TxnAborted)
	return &TxnAbortError{TxnID: txn.ID(), Reason: reason}
}
