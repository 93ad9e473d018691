package perchdb

import (
	"time"

	"github.com/google/btree"
)

// The deadlock detector wakes on a fixed interval, snapshots every lock
// queue into a wait-for graph (edges waiter → holder), and aborts the
// youngest member of each cycle until the graph is acyclic. It never touches
// the victim's queue entry — the blocked acquirer owns that and cleans up on
// its next wakeup — it only flips the transaction to Aborted and broadcasts
// the queue the victim is stuck on.

// StartDetection launches the background detector goroutine. No-op when the
// configured interval is zero or a detector is already running.
func (m *LockManager) StartDetection() {
	m.detectorMu.Lock()
	defer m.detectorMu.Unlock()
	if m.interval <= 0 || m.stopC != nil {
		return
	}
	m.stopC = make(chan struct{})
	m.wg.Add(1)
	go m.runDetection(m.stopC)
}

// StopDetection stops the detector and waits for it to exit.
func (m *LockManager) StopDetection() {
	m.detectorMu.Lock()
	stopC := m.stopC
	m.stopC = nil
	m.detectorMu.Unlock()
	if stopC == nil {
		return
	}
	close(stopC)
	m.wg.Wait()
}

func (m *LockManager) runDetection(stopC chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopC:
			return
		case <-ticker.C:
			m.detectOnce()
		}
	}
}

// waitForGraph is rebuilt from scratch on every detection cycle. Ordered
// txn-id sets keep the traversal deterministic: neighbours ascend, and DFS
// starts ascend over all involved transactions.
type waitForGraph struct {
	edges map[int64]*btree.BTreeG[int64]
	nodes *btree.BTreeG[int64]
}

func newWaitForGraph() *waitForGraph {
	return &waitForGraph{
		edges: make(map[int64]*btree.BTreeG[int64]),
		nodes: btree.NewOrderedG[int64](2),
	}
}

func (g *waitForGraph) addEdge(waiter, holder int64) {
	if waiter == holder {
		return
	}
	set, ok := g.edges[waiter]
	if !ok {
		set = btree.NewOrderedG[int64](2)
		g.edges[waiter] = set
	}
	set.ReplaceOrInsert(holder)
	g.nodes.ReplaceOrInsert(waiter)
	g.nodes.ReplaceOrInsert(holder)
}

// removeNode deletes a transaction and every edge touching it.
func (g *waitForGraph) removeNode(id int64) {
	delete(g.edges, id)
	for _, set := range g.edges {
		set.Delete(id)
	}
	g.nodes.Delete(id)
}

func (g *waitForGraph) neighbours(id int64) []int64 {
	set, ok := g.edges[id]
	if !ok {
		return nil
	}
	out := make([]int64, 0, set.Len())
	set.Ascend(func(t int64) bool {
		out = append(out, t)
		return true
	})
	return out
}

// findCycle runs a deterministic DFS and returns the youngest (largest-id)
// transaction on the first cycle found.
func (g *waitForGraph) findCycle() (int64, bool) {
	visited := make(map[int64]bool)
	onPath := make(map[int64]bool)
	var path []int64
	var victim int64
	found := false

	var dfs func(id int64) bool
	dfs = func(id int64) bool {
		visited[id] = true
		onPath[id] = true
		path = append(path, id)
		for _, next := range g.neighbours(id) {
			if onPath[next] {
				// Cycle: everything on the path from next onward.
				victim = next
				for i := len(path) - 1; i >= 0 && path[i] != next; i-- {
					if path[i] > victim {
						victim = path[i]
					}
				}
				found = true
				return true
			}
			if !visited[next] && dfs(next) {
				return true
			}
		}
		onPath[id] = false
		path = path[:len(path)-1]
		return false
	}

	g.nodes.Ascend(func(id int64) bool {
		if !visited[id] && dfs(id) {
			return false
		}
		return true
	})
	return victim, found
}

// detectOnce builds the wait-for graph from both queue maps and breaks every
// cycle by aborting the youngest participant and waking the queue it is
// blocked on.
func (m *LockManager) detectOnce() {
	g := newWaitForGraph()
	waitingOnTable := make(map[int64]uint32)
	waitingOnRow := make(map[int64]RID)

	m.tableMu.Lock()
	for oid, q := range m.tableQueues {
		q.mu.Lock()
		var granted []int64
		for e := q.requests.Front(); e != nil; e = e.Next() {
			if r := e.Value.(*lockRequest); r.granted {
				granted = append(granted, r.txnID)
			}
		}
		for e := q.requests.Front(); e != nil; e = e.Next() {
			r := e.Value.(*lockRequest)
			if r.granted {
				continue
			}
			waitingOnTable[r.txnID] = oid
			for _, holder := range granted {
				g.addEdge(r.txnID, holder)
			}
		}
		q.mu.Unlock()
	}
	m.tableMu.Unlock()

	m.rowMu.Lock()
	for rid, q := range m.rowQueues {
		q.mu.Lock()
		var granted []int64
		for e := q.requests.Front(); e != nil; e = e.Next() {
			if r := e.Value.(*lockRequest); r.granted {
				granted = append(granted, r.txnID)
			}
		}
		for e := q.requests.Front(); e != nil; e = e.Next() {
			r := e.Value.(*lockRequest)
			if r.granted {
				continue
			}
			waitingOnRow[r.txnID] = rid
			for _, holder := range granted {
				g.addEdge(r.txnID, holder)
			}
		}
		q.mu.Unlock()
	}
	m.rowMu.Unlock()

	for {
		victim, ok := g.findCycle()
		if !ok {
			return
		}
		if v, ok := m.txns.Load(victim); ok {
			v.(*Transaction).setState(TxnAborted)
		}
		m.logger.Warn("deadlock victim aborted", "txn", victim)
		g.removeNode(victim)

		if oid, ok := waitingOnTable[victim]; ok {
			m.tableMu.Lock()
			q := m.tableQueues[oid]
			m.tableMu.Unlock()
			if q != nil {
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			}
		}
		if rid, ok := waitingOnRow[victim]; ok {
			m.rowMu.Lock()
			q := m.rowQueues[rid]
			m.rowMu.Unlock()
			if q != nil {
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			}
		}
	}
}
