package perchdb

// The two node kinds share the fixed header laid out in page.go and differ
// only in entry shape. A node view is a thin, short-lived wrapper over a
// pinned, latched page; it never outlives the pin.
//
// LEAF PAGE LAYOUT:
// ┌──────────────────────────────────────────────────────────────┐
// │ header (28 bytes)                                            │
// │ type, lsn, size, maxSize, parent, pageID, nextPageID         │
// ├──────────────────────────────────────────────────────────────┤
// │ entry[0] (16 bytes): key(8) | rid.page(4) | rid.slot(4)      │
// │ entry[1] ...                                                 │
// └──────────────────────────────────────────────────────────────┘
//
// INTERNAL PAGE LAYOUT:
// ┌──────────────────────────────────────────────────────────────┐
// │ header (24 bytes)                                            │
// │ type, lsn, size, maxSize, parent, pageID                     │
// ├──────────────────────────────────────────────────────────────┤
// │ entry[0] (12 bytes): key(8) | child(4)   — key slot unused   │
// │ entry[1] (12 bytes): key(8) | child(4)                       │
// └──────────────────────────────────────────────────────────────┘
//
// An internal node of size n holds n child pointers and n-1 separator keys;
// entry[0]'s key slot is not consulted by lookups. Child 0 covers keys below
// key[1]; child i covers [key[i], key[i+1]).

func asLeaf(p *Page) leafNode { return leafNode{page: p} }

func asInternal(p *Page) internalNode { return internalNode{page: p} }

// leafMinSize is the underflow threshold for leaves: at least half full in
// entries, with one slot reserved for insert-before-split.
func leafMinSize(maxSize int) int { return maxSize / 2 }

// internalMinSize is the underflow threshold for internal nodes: at least
// half full in child pointers.
func internalMinSize(maxSize int) int { return (maxSize + 1) / 2 }
