package editsync

import (
	"sync"

	"golang.org/x/exp/maps"
)

// a queued write. the snapshot already contains every edit up through
// this mutation, because each mutation is derived from the then-current
// display document.
type pendingMutation struct {
	description    *EditDescription
	snapshot       *Document
	sequenceNumber uint64
}

// strict fifo. at most one mutation is in flight at any instant, and the
// queue never reorders entries. unbounded; callers can watch `QueueSize`
// to apply their own backpressure.
type mutationQueue struct {
	orderedItems    []*pendingMutation
	mutationIdItems map[Id]*pendingMutation

	nextSequenceNumber uint64
	stateLock          sync.Mutex
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		orderedItems:       []*pendingMutation{},
		mutationIdItems:    map[Id]*pendingMutation{},
		nextSequenceNumber: 0,
	}
}

func (self *mutationQueue) Add(description *EditDescription, snapshot *Document) *pendingMutation {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	item := &pendingMutation{
		description:    description,
		snapshot:       snapshot,
		sequenceNumber: self.nextSequenceNumber,
	}
	self.nextSequenceNumber += 1

	self.orderedItems = append(self.orderedItems, item)
	self.mutationIdItems[description.MutationId] = item
	return item
}

func (self *mutationQueue) RemoveFirst() *pendingMutation {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if len(self.orderedItems) == 0 {
		return nil
	}
	item := self.orderedItems[0]
	self.orderedItems[0] = nil
	self.orderedItems = self.orderedItems[1:]
	delete(self.mutationIdItems, item.description.MutationId)
	return item
}

func (self *mutationQueue) PeekFirst() *pendingMutation {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if len(self.orderedItems) == 0 {
		return nil
	}
	return self.orderedItems[0]
}

func (self *mutationQueue) PeekLast() *pendingMutation {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if len(self.orderedItems) == 0 {
		return nil
	}
	return self.orderedItems[len(self.orderedItems)-1]
}

func (self *mutationQueue) QueueSize() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.orderedItems)
}

func (self *mutationQueue) ContainsMutationId(mutationId Id) (sequenceNumber uint64, ok bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	item, ok := self.mutationIdItems[mutationId]
	if !ok {
		return 0, false
	}
	return item.sequenceNumber, true
}

func (self *mutationQueue) MutationIds() []Id {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return maps.Keys(self.mutationIdItems)
}
