package editsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
)

// ui-facing save indicator. transient, not persisted.
type SyncStatus string

const (
	SyncStatusIdle   SyncStatus = "idle"
	SyncStatusSaving SyncStatus = "saving"
	SyncStatusSaved  SyncStatus = "saved"
)

// drain state machine. kept separate from the ui-facing `SyncStatus`:
// the drain is either idle or saving, "saved" is a lingering indicator.
type syncState int

const (
	syncStateIdle syncState = iota
	syncStateSaving
)

type SyncStatusFunction func(status SyncStatus)

// dispatched exactly once per failed write
type SaveErrorFunction func(description *EditDescription, err error)

type DocumentSyncSettings struct {
	// how long the "saved" indicator lingers before reverting to idle.
	// a new edit cancels the revert.
	SavedStatusTimeout time.Duration
}

func DefaultDocumentSyncSettings() *DocumentSyncSettings {
	return &DocumentSyncSettings{
		SavedStatusTimeout: 2 * time.Second,
	}
}

// DocumentSync keeps one remote document in sync with local edits.
//
// two copies of the document are maintained:
//   - confirmed: the value last acknowledged by the store
//   - display: confirmed plus zero or more unacknowledged local edits
//
// each edit is applied to display immediately, snapshotted, and queued.
// a single drain goroutine sends queued snapshots to the store strictly
// in order, one write in flight at a time. a successful write commits
// the server's canonical copy as confirmed. a failed write rolls display
// back to confirmed only when no newer edits remain queued.
//
// one DocumentSync is owned per open editor session and torn down with
// `Close` when the editor navigates away. edits from a single session
// only; there is no cross-session conflict resolution.
type DocumentSync struct {
	ctx    context.Context
	cancel context.CancelFunc

	store      DocumentStore
	documentId Id
	auth       *SessionAuth
	settings   *DocumentSyncSettings

	queue *mutationQueue

	stateLock   sync.Mutex
	confirmed   *Document
	display     *Document
	state       syncState
	status      SyncStatus
	savedRevert *time.Timer
	drainCount  uint64

	statusMonitor      *Monitor
	statusCallbacks    *CallbackList[SyncStatusFunction]
	saveErrorCallbacks *CallbackList[SaveErrorFunction]
}

func NewDocumentSyncWithDefaults(
	ctx context.Context,
	store DocumentStore,
	documentId Id,
) *DocumentSync {
	return NewDocumentSync(ctx, store, documentId, nil, DefaultDocumentSyncSettings())
}

func NewDocumentSync(
	ctx context.Context,
	store DocumentStore,
	documentId Id,
	auth *SessionAuth,
	settings *DocumentSyncSettings,
) *DocumentSync {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &DocumentSync{
		ctx:                cancelCtx,
		cancel:             cancel,
		store:              store,
		documentId:         documentId,
		auth:               auth,
		settings:           settings,
		queue:              newMutationQueue(),
		state:              syncStateIdle,
		status:             SyncStatusIdle,
		statusMonitor:      NewMonitor(),
		statusCallbacks:    NewCallbackList[SyncStatusFunction](),
		saveErrorCallbacks: NewCallbackList[SaveErrorFunction](),
	}
}

// fetches the remote document and resets both copies to it
func (self *DocumentSync) Load() error {
	result, err := self.store.GetDocumentSync(self.documentId)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return errors.New(result.Error.Message)
	}
	if result.Document == nil {
		return errors.New("missing document")
	}

	self.stateLock.Lock()
	self.confirmed = result.Document
	self.display = result.Document.Snapshot()
	self.stateLock.Unlock()

	self.statusMonitor.NotifyAll()
	return nil
}

// seeds both copies locally without a fetch
func (self *DocumentSync) SetDocument(document *Document) {
	self.stateLock.Lock()
	self.confirmed = document
	self.display = document.Snapshot()
	self.stateLock.Unlock()

	self.statusMonitor.NotifyAll()
}

// ApplyEdit applies the edit to the display document and queues a deep
// copy for the store. the display reflects the edit before this call
// returns; the call never waits on the network. an error means the
// mutator itself failed, in which case nothing was changed or queued.
//
// edits fired in rapid succession each see the latest display value,
// so later snapshots always contain earlier edits.
//
// the mutator runs under the state lock and must not call back into
// this DocumentSync.
func (self *DocumentSync) ApplyEdit(edit EditFunction, description *EditDescription) error {
	if description == nil {
		description = &EditDescription{}
	}
	if (description.MutationId == Id{}) {
		description.MutationId = NewId()
	}
	if self.auth != nil {
		if userId, err := self.auth.UserId(); err == nil {
			description.UserId = userId
		}
		if sessionId, err := self.auth.SessionId(); err == nil {
			description.SessionId = sessionId
		}
	}

	self.stateLock.Lock()

	if self.display == nil {
		self.stateLock.Unlock()
		return errors.New("document not loaded")
	}

	nextData, err := edit(self.display.Data)
	if err != nil {
		self.stateLock.Unlock()
		return err
	}
	if nextData == nil {
		self.stateLock.Unlock()
		return errors.New("edit returned no document")
	}

	self.display = &Document{
		DocumentId: self.display.DocumentId,
		Version:    self.display.Version,
		Data:       nextData,
	}
	self.queue.Add(description, self.display.Snapshot())

	if self.savedRevert != nil {
		self.savedRevert.Stop()
		self.savedRevert = nil
	}

	start := false
	var drainIndex uint64
	if self.state == syncStateIdle {
		self.state = syncStateSaving
		self.drainCount += 1
		drainIndex = self.drainCount
		start = true
	}

	self.stateLock.Unlock()

	self.statusMonitor.NotifyAll()
	if start {
		go self.drain(drainIndex)
	}
	return nil
}

// the drain sends queued snapshots one at a time, in order, chaining
// into the next item when the current write resolves. it exits only
// when the queue is empty or the sync is closed.
func (self *DocumentSync) drain(drainIndex uint64) {
	glog.V(2).Infof("[sync][%d]start drain for document = %s\n", drainIndex, self.documentId)

	for {
		select {
		case <-self.ctx.Done():
			self.stateLock.Lock()
			self.state = syncStateIdle
			self.stateLock.Unlock()
			self.statusMonitor.NotifyAll()
			return
		default:
		}

		self.stateLock.Lock()
		item := self.queue.RemoveFirst()
		if item == nil {
			self.state = syncStateIdle
			if self.status == SyncStatusSaved {
				self.savedRevert = time.AfterFunc(
					self.settings.SavedStatusTimeout,
					self.revertSavedStatus,
				)
			}
			self.stateLock.Unlock()
			self.statusMonitor.NotifyAll()
			glog.V(2).Infof("[sync][%d]drain complete for document = %s\n", drainIndex, self.documentId)
			return
		}
		self.stateLock.Unlock()

		self.setStatus(SyncStatusSaving)

		result, err := self.store.ReplaceDocumentSync(&ReplaceDocumentArgs{
			DocumentId: self.documentId,
			Document:   item.snapshot,
		})
		if err == nil && result.Error != nil {
			err = errors.New(result.Error.Message)
		}

		if err == nil {
			self.commit(result.Document, item)
			self.setStatus(SyncStatusSaved)
		} else {
			glog.Infof("[sync][%d]replace error for mutation %s = %s\n", drainIndex, item.description.MutationId, err)
			self.rollbackToConfirmedIfDrained()
			self.setStatus(SyncStatusIdle)
			for _, saveErrorCallback := range self.saveErrorCallbacks.Get() {
				callback := saveErrorCallback
				HandleError(func() {
					callback(item.description, err)
				})
			}
			// keep draining. the failed mutation is dropped; because
			// snapshots carry the whole document, a later successful
			// write repairs the remote state.
		}
	}
}

// advances confirmed to the server's canonical copy. display is left
// untouched except for the version, since it may already carry newer
// queued edits.
func (self *DocumentSync) commit(confirmed *Document, item *pendingMutation) {
	if confirmed == nil {
		// the store did not echo a canonical copy
		confirmed = item.snapshot
	}

	self.stateLock.Lock()
	self.confirmed = confirmed
	self.display = &Document{
		DocumentId: self.display.DocumentId,
		Version:    confirmed.Version,
		Data:       self.display.Data,
	}
	self.stateLock.Unlock()

	self.statusMonitor.NotifyAll()
}

// discards display's divergence when no newer edits remain queued.
// with mutations still queued, display keeps the rejected edit's effects
// until the queue drains.
func (self *DocumentSync) rollbackToConfirmedIfDrained() {
	self.stateLock.Lock()
	if self.queue.QueueSize() == 0 {
		self.display = self.confirmed.Snapshot()
	}
	self.stateLock.Unlock()

	self.statusMonitor.NotifyAll()
}

func (self *DocumentSync) setStatus(status SyncStatus) {
	self.stateLock.Lock()
	if self.status == status {
		self.stateLock.Unlock()
		return
	}
	self.status = status
	self.stateLock.Unlock()

	for _, statusCallback := range self.statusCallbacks.Get() {
		callback := statusCallback
		HandleError(func() {
			callback(status)
		})
	}
	self.statusMonitor.NotifyAll()
}

func (self *DocumentSync) revertSavedStatus() {
	self.stateLock.Lock()
	if self.state != syncStateIdle || self.status != SyncStatusSaved {
		self.stateLock.Unlock()
		return
	}
	self.savedRevert = nil
	self.stateLock.Unlock()

	self.setStatus(SyncStatusIdle)
}

func (self *DocumentSync) DocumentId() Id {
	return self.documentId
}

// the latest value including unacknowledged local edits.
// callers must not modify the returned document.
func (self *DocumentSync) Display() *Document {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.display
}

// the value last acknowledged by the store.
// callers must not modify the returned document.
func (self *DocumentSync) Confirmed() *Document {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.confirmed
}

func (self *DocumentSync) Status() SyncStatus {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.status
}

func (self *DocumentSync) QueueSize() int {
	return self.queue.QueueSize()
}

func (self *DocumentSync) PendingMutationIds() []Id {
	return self.queue.MutationIds()
}

// returns a function to remove the callback
func (self *DocumentSync) AddSyncStatusCallback(statusCallback SyncStatusFunction) func() {
	return self.statusCallbacks.Add(statusCallback)
}

// returns a function to remove the callback
func (self *DocumentSync) AddSaveErrorCallback(saveErrorCallback SaveErrorFunction) func() {
	return self.saveErrorCallbacks.Add(saveErrorCallback)
}

// blocks until every queued mutation has resolved, success or failure
func (self *DocumentSync) WaitForDrain(ctx context.Context) error {
	for {
		self.stateLock.Lock()
		notify := self.statusMonitor.NotifyChannel()
		done := self.state == syncStateIdle && self.queue.QueueSize() == 0
		self.stateLock.Unlock()

		if done {
			return nil
		}

		select {
		case <-notify:
		case <-ctx.Done():
			return ctx.Err()
		case <-self.ctx.Done():
			return errors.New("sync closed")
		}
	}
}

// tears down the sync. queued mutations that have not been sent are
// discarded with the session.
func (self *DocumentSync) Close() {
	self.cancel()

	self.stateLock.Lock()
	if self.savedRevert != nil {
		self.savedRevert.Stop()
		self.savedRevert = nil
	}
	self.stateLock.Unlock()

	self.statusMonitor.NotifyAll()
}
