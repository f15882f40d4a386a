package ledger

import (
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"oneloop/internal/domain"
)

func testClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
}

func TestAddStartsPending(t *testing.T) {
	l := New("m1")
	l.SetClock(testClock())
	id := l.Add("follow up on budget", domain.AssigneeManager)
	it, ok := l.Get(id)
	if !ok {
		t.Fatal("added item not found")
	}
	if !it.Pending {
		t.Error("new item should be pending")
	}
	if it.MeetingID != "m1" {
		t.Errorf("MeetingID = %q, want m1", it.MeetingID)
	}
	if it.CompletedAt != nil {
		t.Error("new item should not carry completedAt")
	}
	if !l.Dirty() {
		t.Error("Add should mark the ledger dirty")
	}
}

func TestAddDefaultsAssignee(t *testing.T) {
	l := New("m1")
	id := l.Add("x", "")
	it, _ := l.Get(id)
	if it.Assignee != domain.AssigneeManager {
		t.Fatalf("Assignee = %q, want manager", it.Assignee)
	}
}

func TestToggleSetsAndClearsCompletedAt(t *testing.T) {
	l := New("m1")
	l.SetClock(testClock())
	id := l.Add("x", "")
	if err := l.Toggle(id); err != nil {
		t.Fatal(err)
	}
	it, _ := l.Get(id)
	if !it.Completed || it.CompletedAt == nil {
		t.Fatalf("toggle on: completed=%v completedAt=%v", it.Completed, it.CompletedAt)
	}
	if err := l.Toggle(id); err != nil {
		t.Fatal(err)
	}
	it, _ = l.Get(id)
	if it.Completed || it.CompletedAt != nil {
		t.Fatalf("toggle off: completed=%v completedAt=%v", it.Completed, it.CompletedAt)
	}
}

func TestMutationsOnMissingItem(t *testing.T) {
	l := New("m1")
	for name, err := range map[string]error{
		"toggle":   l.Toggle("nope"),
		"describe": l.UpdateDescription("nope", "x"),
		"assign":   l.UpdateAssignee("nope", domain.AssigneeManager),
		"remove":   l.Remove("nope"),
	} {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s = %v, want ErrNotFound", name, err)
		}
	}
}

func TestReconcilePreservesPositionAndFields(t *testing.T) {
	l := New("m1")
	l.SetClock(testClock())
	first := l.Add("first", domain.AssigneeManager)
	temp := l.Add("second", domain.AssigneeDirectReport)
	third := l.Add("third", domain.AssigneeManager)
	_ = l.Toggle(temp)

	persisted := domain.ActionItem{ID: "durable-42", MeetingID: "m1"}
	if err := l.Reconcile(temp, persisted); err != nil {
		t.Fatal(err)
	}

	items := l.Items()
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	if items[0].ID != first || items[2].ID != third {
		t.Error("reconcile disturbed neighboring items")
	}
	got := items[1]
	if got.ID != "durable-42" {
		t.Fatalf("ID = %q, want durable-42", got.ID)
	}
	if got.Pending {
		t.Error("reconciled item still pending")
	}
	if got.Description != "second" || got.Assignee != domain.AssigneeDirectReport || !got.Completed {
		t.Errorf("reconcile changed fields: %+v", got)
	}
	if _, ok := l.Get(temp); ok {
		t.Error("temporary id still resolvable")
	}
}

func TestReconcileUnknownTempID(t *testing.T) {
	l := New("m1")
	if err := l.Reconcile("ghost", domain.ActionItem{ID: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Reconcile = %v, want ErrNotFound", err)
	}
}

func TestLoadPersistedNotPending(t *testing.T) {
	l := New("m1")
	l.LoadPersisted([]domain.ActionItem{{ID: "a1", MeetingID: "m1", Description: "old"}})
	it, ok := l.Get("a1")
	if !ok || it.Pending {
		t.Fatalf("persisted item: ok=%v pending=%v", ok, it.Pending)
	}
	if l.Dirty() {
		t.Error("loading persisted items should not dirty the ledger")
	}
}

// TestProperty04_LedgerKeepsInsertionOrder verifies that adds, toggles and
// reconciles never reorder the ledger.
func TestProperty04_LedgerKeepsInsertionOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := New("m1")
		var order []string
		n := rapid.IntRange(1, 20).Draw(rt, "num_items")
		for i := 0; i < n; i++ {
			id := l.Add(rapid.StringMatching(`[a-z ]{1,16}`).Draw(rt, "desc"), "")
			order = append(order, id)
		}
		ops := rapid.IntRange(0, 15).Draw(rt, "num_ops")
		for i := 0; i < ops; i++ {
			idx := rapid.IntRange(0, len(order)-1).Draw(rt, "idx")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_ = l.Toggle(order[idx])
			case 1:
				_ = l.UpdateDescription(order[idx], "updated")
			case 2:
				durable := rapid.StringMatching(`[a-f0-9]{8}`).Draw(rt, "durable")
				if err := l.Reconcile(order[idx], domain.ActionItem{ID: durable, MeetingID: "m1"}); err == nil {
					order[idx] = durable
				}
			}
		}
		items := l.Items()
		if len(items) != len(order) {
			rt.Fatalf("len = %d, want %d", len(items), len(order))
		}
		for i, id := range order {
			if items[i].ID != id {
				rt.Fatalf("items[%d].ID = %s, want %s", i, items[i].ID, id)
			}
		}
	})
}

// TestProperty05_CompletedAtIffCompleted verifies the completedAt invariant
// under arbitrary toggle sequences.
func TestProperty05_CompletedAtIffCompleted(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := New("m1")
		id := l.Add("item", "")
		toggles := rapid.IntRange(0, 9).Draw(rt, "toggles")
		for i := 0; i < toggles; i++ {
			_ = l.Toggle(id)
		}
		it, _ := l.Get(id)
		if it.Completed != (it.CompletedAt != nil) {
			rt.Fatalf("completed=%v but completedAt=%v", it.Completed, it.CompletedAt)
		}
		if it.Completed != (toggles%2 == 1) {
			rt.Fatalf("completed=%v after %d toggles", it.Completed, toggles)
		}
	})
}
