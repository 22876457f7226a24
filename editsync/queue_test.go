package editsync

import (
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestMutationQueueFifo(t *testing.T) {
	queue := newMutationQueue()

	assert.Equal(t, queue.QueueSize(), 0)
	assert.Equal(t, queue.PeekFirst(), nil)
	assert.Equal(t, queue.PeekLast(), nil)
	assert.Equal(t, queue.RemoveFirst(), nil)

	n := 100

	documentId := NewId()
	mutationIds := []Id{}
	for i := 0; i < n; i += 1 {
		description := &EditDescription{
			MutationId: NewId(),
			Op:         EditOpSet,
			Path:       fmt.Sprintf("field_%d", i),
		}
		snapshot := &Document{
			DocumentId: documentId,
			Data:       RequireDocumentData(map[string]any{"i": i}),
		}
		item := queue.Add(description, snapshot)
		assert.Equal(t, item.sequenceNumber, uint64(i))
		mutationIds = append(mutationIds, description.MutationId)
	}

	assert.Equal(t, queue.QueueSize(), n)
	assert.Equal(t, len(queue.MutationIds()), n)

	for i, mutationId := range mutationIds {
		sequenceNumber, ok := queue.ContainsMutationId(mutationId)
		assert.Equal(t, ok, true)
		assert.Equal(t, sequenceNumber, uint64(i))
	}
	_, ok := queue.ContainsMutationId(NewId())
	assert.Equal(t, ok, false)

	// remove in insert order
	for i := 0; i < n; i += 1 {
		assert.Equal(t, queue.QueueSize(), n-i)
		assert.Equal(t, queue.PeekFirst().sequenceNumber, uint64(i))
		assert.Equal(t, queue.PeekLast().sequenceNumber, uint64(n-1))

		first := queue.RemoveFirst()
		assert.Equal(t, first.sequenceNumber, uint64(i))
		assert.Equal(t, first.description.MutationId, mutationIds[i])

		_, ok := queue.ContainsMutationId(mutationIds[i])
		assert.Equal(t, ok, false)
	}

	assert.Equal(t, queue.QueueSize(), 0)
	assert.Equal(t, queue.RemoveFirst(), nil)

	// sequence numbers keep increasing after a drain
	description := &EditDescription{MutationId: NewId()}
	snapshot := &Document{DocumentId: documentId, Data: RequireDocumentData(map[string]any{})}
	item := queue.Add(description, snapshot)
	assert.Equal(t, item.sequenceNumber, uint64(n))
}
