// Package engine orchestrates the domain operations: roster and invitations,
// meeting scheduling, live sessions, analytics and integrations. It is the
// single entry point the CLI and the HTTP server share.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"oneloop/internal/analytics"
	"oneloop/internal/cache"
	"oneloop/internal/config"
	"oneloop/internal/domain"
	"oneloop/internal/events"
	"oneloop/internal/integrations"
	"oneloop/internal/repo"
	"oneloop/internal/session"
	"oneloop/internal/store"
)

type Engine struct {
	DB           *sql.DB
	Store        store.Store
	Repo         repo.Repo
	Events       events.Writer
	Config       *config.Config
	Cache        cache.Dir
	Integrations integrations.Manager
	Now          func() time.Time
}

// New wires an engine over a store. db may be nil when the store is not
// SQLite-backed; the event log is disabled in that case.
func New(db *sql.DB, s store.Store, cfg *config.Config, workspaceDir string) Engine {
	return Engine{
		DB:           db,
		Store:        s,
		Repo:         repo.New(s),
		Events:       events.Writer{DB: db},
		Config:       cfg,
		Cache:        cache.New(filepath.Join(workspaceDir, "cache")),
		Integrations: integrations.New(s),
		Now:          time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) actorID() string {
	if e.Config != nil && e.Config.Manager.ID != "" {
		return e.Config.Manager.ID
	}
	return "manager"
}

func (e Engine) questions() []string {
	if e.Config != nil && len(e.Config.Session.StandardQuestions) > 0 {
		return e.Config.Session.StandardQuestions
	}
	return config.Default("").Session.StandardQuestions
}

func (e Engine) maxDepth() int {
	if e.Config != nil && e.Config.Session.MaxPointDepth > 0 {
		return e.Config.Session.MaxPointDepth
	}
	return config.Default("").Session.MaxPointDepth
}

// --- roster ---

func (e Engine) AddMember(ctx context.Context, fields repo.UserCreate) (domain.User, error) {
	u, err := e.Repo.CreateUser(ctx, fields)
	if err != nil {
		return domain.User{}, err
	}
	_ = e.Events.Append(ctx, "member.added", "user", u.ID, e.actorID(), events.EventPayload{"email": u.Email})
	return u, nil
}

func (e Engine) Members(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

func (e Engine) Member(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e Engine) UpdateMember(ctx context.Context, id string, up repo.UserUpdate) (domain.User, error) {
	u, err := e.Repo.UpdateUser(ctx, id, up)
	if err != nil {
		return domain.User{}, err
	}
	_ = e.Events.Append(ctx, "member.updated", "user", u.ID, e.actorID(), nil)
	return u, nil
}

func (e Engine) RemoveMember(ctx context.Context, id string) error {
	if err := e.Repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	_ = e.Events.Append(ctx, "member.removed", "user", id, e.actorID(), nil)
	return nil
}

// --- invitations ---

func (e Engine) InviteMember(ctx context.Context, fields repo.InvitationCreate) (domain.Invitation, error) {
	if fields.Email == "" {
		return domain.Invitation{}, errors.New("invitation requires an email")
	}
	if _, err := e.Repo.GetUserByEmail(ctx, fields.Email); err == nil {
		return domain.Invitation{}, fmt.Errorf("user with email %s already exists", fields.Email)
	}
	inv, err := e.Repo.CreateInvitation(ctx, fields)
	if err != nil {
		return domain.Invitation{}, err
	}
	_ = e.Events.Append(ctx, "invitation.sent", "invitation", inv.ID, e.actorID(), events.EventPayload{"email": inv.Email})
	return inv, nil
}

func (e Engine) Invitations(ctx context.Context) ([]domain.Invitation, error) {
	return e.Repo.ListInvitations(ctx)
}

func (e Engine) ResendInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	inv, err := e.Repo.TouchInvitation(ctx, id)
	if err != nil {
		return domain.Invitation{}, err
	}
	_ = e.Events.Append(ctx, "invitation.resent", "invitation", inv.ID, e.actorID(), nil)
	return inv, nil
}

func (e Engine) CancelInvitation(ctx context.Context, id string) error {
	if err := e.Repo.DeleteInvitation(ctx, id); err != nil {
		return err
	}
	_ = e.Events.Append(ctx, "invitation.cancelled", "invitation", id, e.actorID(), nil)
	return nil
}

// AcceptInvitation turns a pending invitation into an active member and
// removes the invitation record.
func (e Engine) AcceptInvitation(ctx context.Context, id string) (domain.User, error) {
	inv, err := e.Repo.GetInvitation(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.CreateUser(ctx, repo.UserCreate{
		Name:        inv.Name,
		Email:       inv.Email,
		Position:    inv.Position,
		AccessLevel: inv.AccessLevel,
	})
	if err != nil {
		return domain.User{}, err
	}
	if err := e.Repo.DeleteInvitation(ctx, id); err != nil {
		return domain.User{}, err
	}
	_ = e.Events.Append(ctx, "invitation.accepted", "invitation", id, e.actorID(), events.EventPayload{"userId": u.ID})
	return u, nil
}

// --- scheduling ---

// ScheduleMeeting creates a scheduled meeting for a known team member,
// seeded with the configured standard questions.
func (e Engine) ScheduleMeeting(ctx context.Context, teamMemberID, date string) (domain.Meeting, error) {
	if _, err := e.Repo.GetUser(ctx, teamMemberID); err != nil {
		return domain.Meeting{}, err
	}
	m, err := e.Repo.CreateMeeting(ctx, repo.MeetingCreate{
		TeamMemberID: teamMemberID,
		ManagerID:    e.actorID(),
		Date:         date,
	}, e.questions())
	if err != nil {
		return domain.Meeting{}, err
	}
	_ = e.Events.Append(ctx, "meeting.scheduled", "meeting", m.ID, e.actorID(), events.EventPayload{"teamMemberId": teamMemberID, "date": m.Date})
	return m, nil
}

func (e Engine) Meeting(ctx context.Context, id string) (domain.Meeting, error) {
	return e.Repo.GetMeeting(ctx, id)
}

func (e Engine) Meetings(ctx context.Context) ([]domain.Meeting, error) {
	return e.Repo.ListMeetings(ctx)
}

func (e Engine) MeetingsFor(ctx context.Context, teamMemberID string) ([]domain.Meeting, error) {
	return e.Repo.ListMeetingsByTeamMember(ctx, teamMemberID)
}

// UpcomingMeetings returns scheduled meetings dated from now on, soonest
// first.
func (e Engine) UpcomingMeetings(ctx context.Context) ([]domain.Meeting, error) {
	all, err := e.Repo.ListMeetings(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var upcoming []domain.Meeting
	for _, m := range all {
		if m.Status != domain.MeetingScheduled {
			continue
		}
		if t, err := time.Parse(time.RFC3339, m.Date); err == nil && t.Before(now) {
			continue
		}
		upcoming = append(upcoming, m)
	}
	// ListMeetings sorts newest first; upcoming reads better soonest first.
	for i, j := 0, len(upcoming)-1; i < j; i, j = i+1, j-1 {
		upcoming[i], upcoming[j] = upcoming[j], upcoming[i]
	}
	return upcoming, nil
}

func (e Engine) RescheduleMeeting(ctx context.Context, id, date string) (domain.Meeting, error) {
	m, err := e.Repo.UpdateMeeting(ctx, id, domain.MeetingUpdate{Date: &date})
	if err != nil {
		return domain.Meeting{}, err
	}
	_ = e.Events.Append(ctx, "meeting.rescheduled", "meeting", m.ID, e.actorID(), events.EventPayload{"date": date})
	return m, nil
}

// --- live sessions ---

// StartSession opens a live session on a scheduled meeting. The session gets
// the engine's repo for persistence and the workspace cache as its fallback.
func (e Engine) StartSession(ctx context.Context, meetingID string, notifier session.Notifier) (*session.Session, error) {
	s, err := session.Start(ctx, session.Options{
		MeetingID: meetingID,
		Persister: e.Repo,
		Cache:     e.Cache,
		Notifier:  notifier,
		Questions: e.questions(),
		MaxDepth:  e.maxDepth(),
		Now:       e.Now,
	})
	if err != nil {
		return nil, err
	}
	_ = e.Events.Append(ctx, "session.started", "meeting", meetingID, e.actorID(), nil)
	return s, nil
}

// FinishSession confirms the end of a live session and records the event.
func (e Engine) FinishSession(ctx context.Context, s *session.Session) (session.Summary, error) {
	sum, err := s.ConfirmEnd(ctx)
	if err != nil {
		return session.Summary{}, err
	}
	_ = e.Events.Append(ctx, "meeting.completed", "meeting", s.MeetingID(), e.actorID(), events.EventPayload{
		"durationMinutes": sum.DurationMinutes,
		"actionItems":     sum.TotalActionItems,
	})
	return sum, nil
}

// CancelSession tears a live session down; the meeting stays scheduled.
func (e Engine) CancelSession(ctx context.Context, s *session.Session) error {
	if err := s.Cancel(); err != nil {
		return err
	}
	_ = e.Events.Append(ctx, "session.cancelled", "meeting", s.MeetingID(), e.actorID(), nil)
	return nil
}

// --- action items outside a session ---

func (e Engine) ActionItemsForMeeting(ctx context.Context, meetingID string) ([]domain.ActionItem, error) {
	return e.Repo.ListActionItemsByMeeting(ctx, meetingID)
}

func (e Engine) ActionItemsForUser(ctx context.Context, userID string) ([]domain.ActionItem, error) {
	return e.Repo.ListActionItemsByUser(ctx, userID)
}

func (e Engine) CreateActionItem(ctx context.Context, meetingID string, fields repo.ActionItemCreate) (domain.ActionItem, error) {
	if _, err := e.Repo.GetMeeting(ctx, meetingID); err != nil {
		return domain.ActionItem{}, err
	}
	return e.Repo.CreateActionItem(ctx, meetingID, fields)
}

func (e Engine) UpdateActionItem(ctx context.Context, id string, up domain.ActionItemUpdate) (domain.ActionItem, error) {
	return e.Repo.UpdateActionItem(ctx, id, up)
}

// --- roadmap ---

func (e Engine) UpsertRoadmapItem(ctx context.Context, item domain.RoadmapItem) (domain.RoadmapItem, error) {
	return e.Repo.UpsertRoadmapItem(ctx, item)
}

func (e Engine) RoadmapItems(ctx context.Context) ([]domain.RoadmapItem, error) {
	return e.Repo.ListRoadmapItems(ctx)
}

func (e Engine) DeleteRoadmapItem(ctx context.Context, id string) error {
	return e.Repo.DeleteRoadmapItem(ctx, id)
}

// --- analytics ---

// Report aggregates the full analytics report across all stored data.
func (e Engine) Report(ctx context.Context) (analytics.Report, error) {
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return analytics.Report{}, err
	}
	meetings, err := e.Repo.ListMeetings(ctx)
	if err != nil {
		return analytics.Report{}, err
	}
	var items []domain.ActionItem
	for _, m := range meetings {
		batch, err := e.Repo.ListActionItemsByMeeting(ctx, m.ID)
		if err != nil {
			return analytics.Report{}, err
		}
		items = append(items, batch...)
	}
	return analytics.Build(users, meetings, items, e.now()), nil
}

// --- sample data ---

// SeedSampleData loads a small demo data set into an empty workspace.
func (e Engine) SeedSampleData(ctx context.Context) error {
	existing, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return errors.New("workspace already has members")
	}
	members := []repo.UserCreate{
		{Name: "John Doe", Email: "john@example.com", Position: "Senior Developer"},
		{Name: "Jane Smith", Email: "jane@example.com", Position: "Product Designer"},
		{Name: "Mike Johnson", Email: "mike@example.com", Position: "QA Engineer"},
	}
	for i, mc := range members {
		u, err := e.AddMember(ctx, mc)
		if err != nil {
			return err
		}
		date := e.now().Add(time.Duration(i+1) * 24 * time.Hour).UTC().Format(time.RFC3339)
		if _, err := e.ScheduleMeeting(ctx, u.ID, date); err != nil {
			return err
		}
	}
	return nil
}
