package perchdb

import (
	"sync"

	"perchdb/internal/disk"
)

// DB ties the storage core together: one database file behind a disk
// manager, a shared buffer pool, the lock manager with its deadlock
// detector, and any number of named B+Tree indexes.
type DB struct {
	mu     sync.Mutex
	opts   Options
	disk   *disk.Manager
	pool   *BufferPoolManager
	lm     *LockManager
	tm     *TransactionManager
	trees  map[string]*BTree
	closed bool
}

// Open opens or creates a database file.
func Open(path string, options ...Option) (*DB, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}

	dm, err := disk.Open(path, PageSize, opts.readCacheSize)
	if err != nil {
		return nil, err
	}
	pool := NewBufferPoolManager(opts.poolSize, dm, opts.replacerK, opts.logger)

	if dm.NumPages() == 0 {
		// Fresh file: claim page 0 for the header before anything else can.
		page := pool.NewPage()
		if page == nil || page.ID() != HeaderPageID {
			dm.Close()
			return nil, ErrCorruption
		}
		pool.UnpinPage(HeaderPageID, true)
	}
	if err := headerVerify(pool); err != nil {
		dm.Close()
		return nil, err
	}

	lm := NewLockManager(opts.detectionInterval, opts.logger)
	lm.StartDetection()

	d := &DB{
		opts:  opts,
		disk:  dm,
		pool:  pool,
		lm:    lm,
		tm:    NewTransactionManager(lm),
		trees: make(map[string]*BTree),
	}
	opts.logger.Info("database opened", "path", path, "pages", dm.NumPages())
	return d, nil
}

// OpenIndex returns the named B+Tree, creating its header record lazily on
// first insert. Repeated calls share one tree.
func (d *DB) OpenIndex(name string) (*BTree, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDatabaseClosed
	}
	if t, ok := d.trees[name]; ok {
		return t, nil
	}
	t, err := NewBTree(name, d.pool, DefaultComparator, d.opts.leafMaxSize, d.opts.internalMaxSize)
	if err != nil {
		return nil, err
	}
	d.trees[name] = t
	return t, nil
}

// LockManager exposes the lock manager for executors.
func (d *DB) LockManager() *LockManager { return d.lm }

// Transactions exposes the transaction manager.
func (d *DB) Transactions() *TransactionManager { return d.tm }

// Pool exposes the buffer pool, mainly for tests and tooling.
func (d *DB) Pool() *BufferPoolManager { return d.pool }

// Close stops the deadlock detector, flushes every resident page, and closes
// the file.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.lm.StopDetection()
	d.pool.FlushAll()
	err := d.disk.Close()
	d.opts.logger.Info("database closed")
	return err
}
