// Package ledger keeps the working copy of a meeting's action items. Items
// start in an explicit Pending state with a locally-generated id; a
// successful create-sync reconciles the temporary id to the store-assigned
// one in place.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"oneloop/internal/domain"
)

var ErrNotFound = errors.New("action item not found")

// Item is one ledger entry. Pending marks items not yet persisted; their ID
// is a local temporary value until Reconcile swaps it.
type Item struct {
	domain.ActionItem
	Pending bool `json:"pending,omitempty"`
}

type Ledger struct {
	mu        sync.RWMutex
	meetingID string
	items     []Item
	dirty     bool
	now       func() time.Time
}

func New(meetingID string) *Ledger {
	return &Ledger{meetingID: meetingID, now: time.Now}
}

// SetClock injects a clock for tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// LoadPersisted appends already-persisted items (session restart on an
// existing meeting).
func (l *Ledger) LoadPersisted(items []domain.ActionItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range items {
		l.items = append(l.items, Item{ActionItem: a})
	}
}

// Add creates a pending item and returns its temporary id.
func (l *Ledger) Add(description, assignee string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if assignee == "" {
		assignee = domain.AssigneeManager
	}
	it := Item{
		ActionItem: domain.ActionItem{
			ID:          uuid.New().String(),
			MeetingID:   l.meetingID,
			Description: description,
			Assignee:    assignee,
			CreatedAt:   l.now().UTC().Format(time.RFC3339),
		},
		Pending: true,
	}
	l.items = append(l.items, it)
	l.dirty = true
	return it.ID
}

func (l *Ledger) find(id string) *Item {
	for i := range l.items {
		if l.items[i].ID == id {
			return &l.items[i]
		}
	}
	return nil
}

// Toggle flips completion. completedAt is set exactly when the item becomes
// completed and cleared when it is toggled back.
func (l *Ledger) Toggle(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	it := l.find(id)
	if it == nil {
		return ErrNotFound
	}
	it.Completed = !it.Completed
	if it.Completed {
		ts := l.now().UTC().Format(time.RFC3339)
		it.CompletedAt = &ts
	} else {
		it.CompletedAt = nil
	}
	l.dirty = true
	return nil
}

func (l *Ledger) UpdateDescription(id, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	it := l.find(id)
	if it == nil {
		return ErrNotFound
	}
	it.Description = text
	l.dirty = true
	return nil
}

func (l *Ledger) UpdateAssignee(id, assignee string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	it := l.find(id)
	if it == nil {
		return ErrNotFound
	}
	it.Assignee = assignee
	l.dirty = true
	return nil
}

func (l *Ledger) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			l.dirty = true
			return nil
		}
	}
	return ErrNotFound
}

// Reconcile swaps the temporary id for the persisted one, preserving the
// item's position and every other field. Atomic relative to concurrent
// reads.
func (l *Ledger) Reconcile(tempID string, persisted domain.ActionItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	it := l.find(tempID)
	if it == nil {
		return ErrNotFound
	}
	it.ID = persisted.ID
	it.MeetingID = persisted.MeetingID
	it.Pending = false
	return nil
}

// Get returns a copy of the item by id.
func (l *Ledger) Get(id string) (Item, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if it := l.find(id); it != nil {
		return *it, true
	}
	return Item{}, false
}

// Items returns a copy of the ledger in insertion order.
func (l *Ledger) Items() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Dirty reports whether the ledger has unflushed mutations.
func (l *Ledger) Dirty() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dirty
}

// MarkClean is called by the session after a successful flush.
func (l *Ledger) MarkClean() {
	l.mu.Lock()
	l.dirty = false
	l.mu.Unlock()
}
