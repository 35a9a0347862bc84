package engine

import (
	"sort"
	"time"
)

// Priority tiers for queue items. High is reserved for manual retries.
const (
	priorityNormal = 0
	priorityHigh   = 1
)

// queueItem is a paragraph selected as a translation candidate but not
// yet dispatched.
type queueItem struct {
	id         string
	ordinal    int
	priority   int
	enqueuedAt time.Time
}

// workQueue is the ordered worklist of paragraphs awaiting translation.
//
// High-priority items are prepended ahead of everything else. Normal
// items are kept sorted ascending by ordinal after the high tier, so
// contiguous runs can be extracted by a linear scan from the head.
// Membership is tracked so inserts are idempotent.
type workQueue struct {
	items []queueItem
	byID  map[string]struct{}
}

func newWorkQueue() *workQueue {
	return &workQueue{byID: make(map[string]struct{})}
}

// insert adds an item unless its id is already queued. Returns true if
// the item was added.
func (q *workQueue) insert(item queueItem) bool {
	if _, ok := q.byID[item.id]; ok {
		return false
	}
	q.byID[item.id] = struct{}{}

	if item.priority == priorityHigh {
		q.items = append([]queueItem{item}, q.items...)
		return true
	}

	// Normal tier starts after any high-priority items.
	lo := 0
	for lo < len(q.items) && q.items[lo].priority == priorityHigh {
		lo++
	}
	pos := lo + sort.Search(len(q.items)-lo, func(i int) bool {
		return q.items[lo+i].ordinal >= item.ordinal
	})
	q.items = append(q.items, queueItem{})
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = item
	return true
}

// contains reports whether the id has a live queue item.
func (q *workQueue) contains(id string) bool {
	_, ok := q.byID[id]
	return ok
}

// remove deletes the item with the given id, if present.
func (q *workQueue) remove(id string) {
	if _, ok := q.byID[id]; !ok {
		return
	}
	delete(q.byID, id)
	for i := range q.items {
		if q.items[i].id == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// removeAll deletes every listed id from the queue.
func (q *workQueue) removeAll(ids []string) {
	for _, id := range ids {
		q.remove(id)
	}
}

func (q *workQueue) len() int {
	return len(q.items)
}

// at returns the item at queue position i.
func (q *workQueue) at(i int) queueItem {
	return q.items[i]
}

// clear empties the queue.
func (q *workQueue) clear() {
	q.items = nil
	q.byID = make(map[string]struct{})
}
