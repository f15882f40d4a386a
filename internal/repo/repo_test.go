package repo_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"oneloop/internal/domain"
	"oneloop/internal/repo"
	"oneloop/internal/store"
)

var questions = []string{"q one", "q two", "q three"}

func newTestRepo() repo.Repo {
	r := repo.New(store.NewMemory())
	r.Now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }
	return r
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	if _, err := r.CreateUser(ctx, repo.UserCreate{Name: "A", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateUser(ctx, repo.UserCreate{Name: "B", Email: "a@example.com"}); err == nil {
		t.Fatal("duplicate email accepted")
	}
}

// brokenGetStore fails reads for keys under a prefix.
type brokenGetStore struct {
	store.Store
	prefix string
}

func (s brokenGetStore) Get(ctx context.Context, key string, out any) error {
	if strings.HasPrefix(key, s.prefix) {
		return errors.New("kv store offline")
	}
	return s.Store.Get(ctx, key, out)
}

func TestCreateUserSurfacesEmailIndexFailure(t *testing.T) {
	r := repo.New(brokenGetStore{Store: store.NewMemory(), prefix: "user:email:"})
	ctx := context.Background()

	_, err := r.CreateUser(ctx, repo.UserCreate{Name: "A", Email: "a@example.com"})
	if err == nil {
		t.Fatal("store failure treated as free email")
	}
	if strings.Contains(err.Error(), "already exists") {
		t.Fatalf("store failure reported as duplicate: %v", err)
	}
	users, err := r.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Fatalf("user written despite failed uniqueness check: %d", len(users))
	}
}

func TestGetUserByEmail(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	u, err := r.CreateUser(ctx, repo.UserCreate{Name: "A", Email: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Fatalf("GetUserByEmail returned %s, want %s", got.ID, u.ID)
	}
	if _, err := r.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing email = %v, want ErrNotFound", err)
	}
}

func TestListUsersSkipsEmailIndex(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	for _, e := range []string{"a@example.com", "b@example.com"} {
		if _, err := r.CreateUser(ctx, repo.UserCreate{Name: e, Email: e}); err != nil {
			t.Fatal(err)
		}
	}
	users, err := r.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers = %d entries, want 2", len(users))
	}
}

func TestDeleteUserDropsEmailIndex(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	u, _ := r.CreateUser(ctx, repo.UserCreate{Name: "A", Email: "a@example.com"})
	if err := r.DeleteUser(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetUserByEmail(ctx, "a@example.com"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("email index survived delete: %v", err)
	}
	if _, err := r.CreateUser(ctx, repo.UserCreate{Name: "A2", Email: "a@example.com"}); err != nil {
		t.Fatalf("email not reusable after delete: %v", err)
	}
}

func TestCreateMeetingSeedsQuestions(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	m, err := r.CreateMeeting(ctx, repo.MeetingCreate{TeamMemberID: "tm1", ManagerID: "mgr"}, questions)
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != domain.MeetingScheduled {
		t.Errorf("status = %s", m.Status)
	}
	if len(m.StandardQuestions) != 3 {
		t.Fatalf("seeded %d questions, want 3", len(m.StandardQuestions))
	}
	if m.StandardQuestions[0].ID != "std_q1" || m.StandardQuestions[2].ID != "std_q3" {
		t.Errorf("question ids = %s..%s", m.StandardQuestions[0].ID, m.StandardQuestions[2].ID)
	}
	if m.Date == "" {
		t.Error("date not defaulted")
	}
}

func TestCompletedMeetingAcceptsOnlyAuditFields(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	m, _ := r.CreateMeeting(ctx, repo.MeetingCreate{TeamMemberID: "tm1"}, questions)
	status := domain.MeetingCompleted
	if _, err := r.UpdateMeeting(ctx, m.ID, domain.MeetingUpdate{Status: &status}); err != nil {
		t.Fatal(err)
	}

	notes := "post-meeting notes"
	transcript := "rec.txt"
	if _, err := r.UpdateMeeting(ctx, m.ID, domain.MeetingUpdate{Notes: &notes, TranscriptFileName: &transcript}); err != nil {
		t.Fatalf("audit-only update rejected: %v", err)
	}

	points := []domain.DiscussionPoint{{ID: "p1", Text: "late edit"}}
	if _, err := r.UpdateMeeting(ctx, m.ID, domain.MeetingUpdate{DiscussionPoints: &points}); !errors.Is(err, repo.ErrMeetingCompleted) {
		t.Fatalf("content update = %v, want ErrMeetingCompleted", err)
	}
	back := domain.MeetingScheduled
	if _, err := r.UpdateMeeting(ctx, m.ID, domain.MeetingUpdate{Status: &back}); !errors.Is(err, repo.ErrMeetingCompleted) {
		t.Fatalf("status revert = %v, want ErrMeetingCompleted", err)
	}
}

func TestListMeetingsByMemberSortedByDateDesc(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	dates := []string{"2025-06-01T10:00:00Z", "2025-06-10T10:00:00Z", "2025-06-05T10:00:00Z"}
	for _, d := range dates {
		if _, err := r.CreateMeeting(ctx, repo.MeetingCreate{TeamMemberID: "tm1", Date: d}, questions); err != nil {
			t.Fatal(err)
		}
	}
	meetings, err := r.ListMeetingsByTeamMember(ctx, "tm1")
	if err != nil {
		t.Fatal(err)
	}
	if len(meetings) != 3 {
		t.Fatalf("got %d meetings", len(meetings))
	}
	want := []string{"2025-06-10T10:00:00Z", "2025-06-05T10:00:00Z", "2025-06-01T10:00:00Z"}
	for i, d := range want {
		if meetings[i].Date != d {
			t.Errorf("meetings[%d].Date = %s, want %s", i, meetings[i].Date, d)
		}
	}
}

func TestActionItemCompletedAtTransitions(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	m, _ := r.CreateMeeting(ctx, repo.MeetingCreate{TeamMemberID: "tm1"}, questions)
	a, err := r.CreateActionItem(ctx, m.ID, repo.ActionItemCreate{Description: "x", Assignee: domain.AssigneeManager})
	if err != nil {
		t.Fatal(err)
	}
	if a.CompletedAt != nil {
		t.Error("new item has completedAt")
	}

	done := true
	a, err = r.UpdateActionItem(ctx, a.ID, domain.ActionItemUpdate{Completed: &done})
	if err != nil {
		t.Fatal(err)
	}
	if a.CompletedAt == nil {
		t.Fatal("completedAt not set on completion")
	}

	undone := false
	a, err = r.UpdateActionItem(ctx, a.ID, domain.ActionItemUpdate{Completed: &undone})
	if err != nil {
		t.Fatal(err)
	}
	if a.CompletedAt != nil {
		t.Fatal("completedAt not cleared")
	}
}

func TestActionItemIndexes(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	m, _ := r.CreateMeeting(ctx, repo.MeetingCreate{TeamMemberID: "tm1"}, questions)
	if _, err := r.CreateActionItem(ctx, m.ID, repo.ActionItemCreate{Description: "a", AssigneeID: "tm1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateActionItem(ctx, m.ID, repo.ActionItemCreate{Description: "b"}); err != nil {
		t.Fatal(err)
	}

	byMeeting, err := r.ListActionItemsByMeeting(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(byMeeting) != 2 {
		t.Fatalf("by meeting = %d, want 2", len(byMeeting))
	}
	byUser, err := r.ListActionItemsByUser(ctx, "tm1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser) != 1 || byUser[0].Description != "a" {
		t.Fatalf("by user = %+v", byUser)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	inv, err := r.CreateInvitation(ctx, repo.InvitationCreate{Name: "New Hire", Email: "new@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != "pending" || inv.AccessLevel != domain.AssigneeDirectReport {
		t.Errorf("invitation defaults = %+v", inv)
	}

	r.Now = func() time.Time { return time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC) }
	touched, err := r.TouchInvitation(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if touched.InvitedAt == inv.InvitedAt {
		t.Error("resend did not refresh invitedAt")
	}

	if err := r.DeleteInvitation(ctx, inv.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.DeleteInvitation(ctx, inv.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestRoadmapUpsert(t *testing.T) {
	r := newTestRepo()
	ctx := context.Background()
	item, err := r.UpsertRoadmapItem(ctx, domain.RoadmapItem{Type: "story", Title: "Ship importer"})
	if err != nil {
		t.Fatal(err)
	}
	if item.ID == "" || item.Status != "planning" {
		t.Fatalf("upsert defaults = %+v", item)
	}

	item.Progress = 60
	item.Status = "in-progress"
	updated, err := r.UpsertRoadmapItem(ctx, item)
	if err != nil {
		t.Fatal(err)
	}
	if updated.ID != item.ID || updated.Progress != 60 {
		t.Fatalf("update lost fields: %+v", updated)
	}

	items, err := r.ListRoadmapItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("list = %d items, want 1", len(items))
	}
}
