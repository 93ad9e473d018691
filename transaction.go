package perchdb

import (
	"sync"
	"sync/atomic"
)

// TransactionState tracks the two-phase-locking lifecycle.
type TransactionState int32

const (
	TxnGrowing TransactionState = iota
	TxnShrinking
	TxnCommitted
	TxnAborted
)

func (s TransactionState) String() string {
	switch s {
	case TxnGrowing:
		return "growing"
	case TxnShrinking:
		return "shrinking"
	case TxnCommitted:
		return "committed"
	case TxnAborted:
		return "aborted"
	}
	return "unknown"
}

// IsolationLevel selects the lock manager's admission policy for a
// transaction.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "read-uncommitted"
	case ReadCommitted:
		return "read-committed"
	case RepeatableRead:
		return "repeatable-read"
	}
	return "unknown"
}

// Transaction carries a transaction's identity, isolation level, 2PL state,
// held-lock bookkeeping, and the B+Tree's crabbing scratch state. A handle is
// owned by its thread of control; only the state field is touched from the
// outside, by the deadlock detector.
type Transaction struct {
	id        int64
	isolation IsolationLevel
	state     atomic.Int32

	// Held table locks, one set per mode. Maintained by the lock manager
	// inside the owning thread's lock, unlock, commit and abort calls.
	sharedTableLocks                   map[uint32]struct{}
	exclusiveTableLocks                map[uint32]struct{}
	intentionSharedTableLocks          map[uint32]struct{}
	intentionExclusiveTableLocks       map[uint32]struct{}
	sharedIntentionExclusiveTableLocks map[uint32]struct{}

	// Held row locks, keyed by table then row.
	sharedRowLocks    map[uint32]map[RID]struct{}
	exclusiveRowLocks map[uint32]map[RID]struct{}

	// B+Tree crabbing state: still-latched ancestors in descent order (nil
	// stands for the tree's root latch) and pages queued for deletion until
	// the descent's latches are gone.
	pageSet      []*Page
	deletedPages []PageID
}

func newTransaction(id int64, level IsolationLevel) *Transaction {
	return &Transaction{
		id:                                 id,
		isolation:                          level,
		sharedTableLocks:                   make(map[uint32]struct{}),
		exclusiveTableLocks:                make(map[uint32]struct{}),
		intentionSharedTableLocks:          make(map[uint32]struct{}),
		intentionExclusiveTableLocks:       make(map[uint32]struct{}),
		sharedIntentionExclusiveTableLocks: make(map[uint32]struct{}),
		sharedRowLocks:                     make(map[uint32]map[RID]struct{}),
		exclusiveRowLocks:                  make(map[uint32]map[RID]struct{}),
	}
}

// ID returns the transaction id. Larger ids are younger transactions.
func (t *Transaction) ID() int64 { return t.id }

// Isolation returns the transaction's isolation level.
func (t *Transaction) Isolation() IsolationLevel { return t.isolation }

// State returns the current 2PL state.
func (t *Transaction) State() TransactionState {
	return TransactionState(t.state.Load())
}

func (t *Transaction) setState(s TransactionState) {
	t.state.Store(int32(s))
}

func (t *Transaction) isTerminal() bool {
	s := t.State()
	return s == TxnCommitted || s == TxnAborted
}

// SharedTableLocks returns the set of tables this transaction holds S on.
func (t *Transaction) SharedTableLocks() map[uint32]struct{} { return t.sharedTableLocks }

// ExclusiveTableLocks returns the set of tables this transaction holds X on.
func (t *Transaction) ExclusiveTableLocks() map[uint32]struct{} { return t.exclusiveTableLocks }

// IntentionSharedTableLocks returns the IS table set.
func (t *Transaction) IntentionSharedTableLocks() map[uint32]struct{} {
	return t.intentionSharedTableLocks
}

// IntentionExclusiveTableLocks returns the IX table set.
func (t *Transaction) IntentionExclusiveTableLocks() map[uint32]struct{} {
	return t.intentionExclusiveTableLocks
}

// SharedIntentionExclusiveTableLocks returns the SIX table set.
func (t *Transaction) SharedIntentionExclusiveTableLocks() map[uint32]struct{} {
	return t.sharedIntentionExclusiveTableLocks
}

// SharedRowLocks returns the S row sets keyed by table.
func (t *Transaction) SharedRowLocks() map[uint32]map[RID]struct{} { return t.sharedRowLocks }

// ExclusiveRowLocks returns the X row sets keyed by table.
func (t *Transaction) ExclusiveRowLocks() map[uint32]map[RID]struct{} { return t.exclusiveRowLocks }

func (t *Transaction) tableLockSet(mode LockMode) map[uint32]struct{} {
	switch mode {
	case LockShared:
		return t.sharedTableLocks
	case LockExclusive:
		return t.exclusiveTableLocks
	case LockIntentionShared:
		return t.intentionSharedTableLocks
	case LockIntentionExclusive:
		return t.intentionExclusiveTableLocks
	case LockSharedIntentionExclusive:
		return t.sharedIntentionExclusiveTableLocks
	}
	return nil
}

func (t *Transaction) rowLockSet(mode LockMode) map[uint32]map[RID]struct{} {
	if mode == LockShared {
		return t.sharedRowLocks
	}
	return t.exclusiveRowLocks
}

func (t *Transaction) holdsTableLock(oid uint32, modes ...LockMode) bool {
	for _, m := range modes {
		if _, ok := t.tableLockSet(m)[oid]; ok {
			return true
		}
	}
	return false
}

func (t *Transaction) addToPageSet(p *Page) {
	t.pageSet = append(t.pageSet, p)
}

func (t *Transaction) addDeletedPage(id PageID) {
	t.deletedPages = append(t.deletedPages, id)
}

func (t *Transaction) takeDeletedPages() []PageID {
	pages := t.deletedPages
	t.deletedPages = nil
	return pages
}

// TransactionManager hands out transaction handles and drives commit and
// abort, releasing every lock the transaction still holds.
type TransactionManager struct {
	mu     sync.Mutex
	nextID int64
	txns   map[int64]*Transaction
	lm     *LockManager
}

// NewTransactionManager wires a manager over the lock manager.
func NewTransactionManager(lm *LockManager) *TransactionManager {
	return &TransactionManager{
		txns: make(map[int64]*Transaction),
		lm:   lm,
	}
}

// Begin starts a transaction at the given isolation level.
func (m *TransactionManager) Begin(level IsolationLevel) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	txn := newTransaction(id, level)
	m.txns[id] = txn
	return txn
}

// Commit moves the transaction to Committed and releases all of its locks.
func (m *TransactionManager) Commit(txn *Transaction) {
	txn.setState(TxnCommitted)
	m.lm.releaseAll(txn)
	m.forget(txn)
}

// Abort moves the transaction to Aborted and releases all of its locks. The
// caller owns undoing the transaction's writes.
func (m *TransactionManager) Abort(txn *Transaction) {
	txn.setState(TxnAborted)
	m.lm.releaseAll(txn)
	m.forget(txn)
}

// Get returns a live transaction handle by id.
func (m *TransactionManager) Get(id int64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[id]
	return txn, ok
}

func (m *TransactionManager) forget(txn *Transaction) {
	m.mu.Lock()
	delete(m.txns, txn.id)
	m.mu.Unlock()
	m.lm.forgetTxn(txn.id)
}
