// Package repo persists users, meetings, action items, invitations and
// roadmap items as JSON records in the key-value store, with index keys for
// the lookups the rest of the system needs.
package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"oneloop/internal/domain"
	"oneloop/internal/store"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrMeetingCompleted rejects mutations to a completed meeting; only
	// append-only audit fields may still change.
	ErrMeetingCompleted = errors.New("meeting already completed")
)

type Repo struct {
	Store store.Store
	Now   func() time.Time
}

func New(s store.Store) Repo {
	return Repo{Store: s, Now: time.Now}
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) nowStr() string {
	return r.now().UTC().Format(time.RFC3339)
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// --- users ---

type UserCreate struct {
	Name        string
	Email       string
	Position    string
	AccessLevel string
}

func (r Repo) CreateUser(ctx context.Context, fields UserCreate) (domain.User, error) {
	if fields.Email != "" {
		var existing string
		err := r.Store.Get(ctx, "user:email:"+fields.Email, &existing)
		if err == nil {
			return domain.User{}, fmt.Errorf("user with email %s already exists", fields.Email)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.User{}, err
		}
	}
	if fields.AccessLevel == "" {
		fields.AccessLevel = domain.AssigneeDirectReport
	}
	u := domain.User{
		ID:          uuid.New().String(),
		Name:        fields.Name,
		Email:       fields.Email,
		Position:    fields.Position,
		AccessLevel: fields.AccessLevel,
		Status:      "active",
		CreatedAt:   r.nowStr(),
	}
	if err := r.Store.Set(ctx, "user:"+u.ID, u); err != nil {
		return domain.User{}, err
	}
	if u.Email != "" {
		if err := r.Store.Set(ctx, "user:email:"+u.Email, u.ID); err != nil {
			return domain.User{}, err
		}
	}
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	if err := r.Store.Get(ctx, "user:"+id, &u); err != nil {
		return domain.User{}, notFound(err)
	}
	return u, nil
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var id string
	if err := r.Store.Get(ctx, "user:email:"+email, &id); err != nil {
		return domain.User{}, notFound(err)
	}
	return r.GetUser(ctx, id)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	keys, err := r.Store.Scan(ctx, "user:")
	if err != nil {
		return nil, err
	}
	var users []domain.User
	for _, k := range keys {
		if strings.HasPrefix(k, "user:email:") {
			continue
		}
		var u domain.User
		if err := r.Store.Get(ctx, k, &u); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

type UserUpdate struct {
	Position    *string
	AccessLevel *string
	Status      *string
}

func (r Repo) UpdateUser(ctx context.Context, id string, up UserUpdate) (domain.User, error) {
	u, err := r.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if up.Position != nil {
		u.Position = *up.Position
	}
	if up.AccessLevel != nil {
		u.AccessLevel = *up.AccessLevel
	}
	if up.Status != nil {
		u.Status = *up.Status
	}
	if err := r.Store.Set(ctx, "user:"+u.ID, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r Repo) DeleteUser(ctx context.Context, id string) error {
	u, err := r.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := r.Store.Delete(ctx, "user:"+id); err != nil {
		return err
	}
	if u.Email != "" {
		if err := r.Store.Delete(ctx, "user:email:"+u.Email); err != nil {
			return err
		}
	}
	return nil
}

// --- meetings ---

type MeetingCreate struct {
	TeamMemberID     string
	ManagerID        string
	Date             string
	DiscussionPoints []domain.DiscussionPoint
}

// CreateMeeting stores a scheduled meeting seeded with the given standard
// questions and indexes it by team member.
func (r Repo) CreateMeeting(ctx context.Context, fields MeetingCreate, questions []string) (domain.Meeting, error) {
	now := r.nowStr()
	date := fields.Date
	if date == "" {
		date = now
	}
	m := domain.Meeting{
		ID:                uuid.New().String(),
		TeamMemberID:      fields.TeamMemberID,
		ManagerID:         fields.ManagerID,
		Date:              date,
		Status:            domain.MeetingScheduled,
		DiscussionPoints:  fields.DiscussionPoints,
		StandardQuestions: standardQuestions(questions),
		CreatedAt:         now,
		LastModified:      now,
	}
	if m.DiscussionPoints == nil {
		m.DiscussionPoints = []domain.DiscussionPoint{}
	}
	if err := r.Store.Set(ctx, "meeting:"+m.ID, m); err != nil {
		return domain.Meeting{}, err
	}
	var index []string
	if err := r.Store.Get(ctx, "meetings:member:"+m.TeamMemberID, &index); err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Meeting{}, err
	}
	index = append(index, m.ID)
	if err := r.Store.Set(ctx, "meetings:member:"+m.TeamMemberID, index); err != nil {
		return domain.Meeting{}, err
	}
	return m, nil
}

func standardQuestions(texts []string) []domain.StandardQuestion {
	qs := make([]domain.StandardQuestion, 0, len(texts))
	for i, t := range texts {
		qs = append(qs, domain.StandardQuestion{ID: fmt.Sprintf("std_q%d", i+1), Text: t})
	}
	return qs
}

func (r Repo) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	var m domain.Meeting
	if err := r.Store.Get(ctx, "meeting:"+id, &m); err != nil {
		return domain.Meeting{}, notFound(err)
	}
	return m, nil
}

// UpdateMeeting applies a partial update and refreshes lastModified. A
// completed meeting only accepts audit fields (transcript reference, notes).
func (r Repo) UpdateMeeting(ctx context.Context, id string, up domain.MeetingUpdate) (domain.Meeting, error) {
	m, err := r.GetMeeting(ctx, id)
	if err != nil {
		return domain.Meeting{}, err
	}
	if m.Status == domain.MeetingCompleted && !auditOnly(up) {
		return domain.Meeting{}, ErrMeetingCompleted
	}
	if up.DiscussionPoints != nil {
		m.DiscussionPoints = *up.DiscussionPoints
	}
	if up.StandardQuestions != nil {
		m.StandardQuestions = *up.StandardQuestions
	}
	if up.Notes != nil {
		m.Notes = *up.Notes
	}
	if up.Status != nil {
		m.Status = *up.Status
	}
	if up.Duration != nil {
		m.Duration = *up.Duration
	}
	if up.EndTime != nil {
		m.EndTime = up.EndTime
	}
	if up.TranscriptFileName != nil {
		m.TranscriptFileName = up.TranscriptFileName
	}
	if up.Date != nil {
		m.Date = *up.Date
	}
	if up.LastModified != nil {
		m.LastModified = *up.LastModified
	} else {
		m.LastModified = r.nowStr()
	}
	if err := r.Store.Set(ctx, "meeting:"+m.ID, m); err != nil {
		return domain.Meeting{}, err
	}
	return m, nil
}

func auditOnly(up domain.MeetingUpdate) bool {
	return up.DiscussionPoints == nil && up.StandardQuestions == nil && up.Status == nil &&
		up.Duration == nil && up.EndTime == nil && up.Date == nil
}

func (r Repo) ListMeetingsByTeamMember(ctx context.Context, teamMemberID string) ([]domain.Meeting, error) {
	var ids []string
	if err := r.Store.Get(ctx, "meetings:member:"+teamMemberID, &ids); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var meetings []domain.Meeting
	for _, id := range ids {
		m, err := r.GetMeeting(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		meetings = append(meetings, m)
	}
	sortMeetingsByDateDesc(meetings)
	return meetings, nil
}

func (r Repo) ListMeetings(ctx context.Context) ([]domain.Meeting, error) {
	keys, err := r.Store.Scan(ctx, "meeting:")
	if err != nil {
		return nil, err
	}
	var meetings []domain.Meeting
	for _, k := range keys {
		var m domain.Meeting
		if err := r.Store.Get(ctx, k, &m); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		meetings = append(meetings, m)
	}
	sortMeetingsByDateDesc(meetings)
	return meetings, nil
}

func sortMeetingsByDateDesc(meetings []domain.Meeting) {
	sort.SliceStable(meetings, func(i, j int) bool {
		ti, ei := time.Parse(time.RFC3339, meetings[i].Date)
		tj, ej := time.Parse(time.RFC3339, meetings[j].Date)
		if ei != nil || ej != nil {
			return meetings[i].Date > meetings[j].Date
		}
		return ti.After(tj)
	})
}

// --- action items ---

type ActionItemCreate struct {
	Description string
	Assignee    string
	AssigneeID  string
	Completed   bool
}

// CreateActionItem assigns the durable id and indexes the item by meeting
// and, when known, by assignee.
func (r Repo) CreateActionItem(ctx context.Context, meetingID string, fields ActionItemCreate) (domain.ActionItem, error) {
	a := domain.ActionItem{
		ID:          uuid.New().String(),
		MeetingID:   meetingID,
		Description: fields.Description,
		Assignee:    fields.Assignee,
		AssigneeID:  fields.AssigneeID,
		Completed:   fields.Completed,
		CreatedAt:   r.nowStr(),
	}
	if a.Completed {
		ts := r.nowStr()
		a.CompletedAt = &ts
	}
	if err := r.Store.Set(ctx, "action:"+a.ID, a); err != nil {
		return domain.ActionItem{}, err
	}
	if err := r.appendIndex(ctx, "actions:meeting:"+meetingID, a.ID); err != nil {
		return domain.ActionItem{}, err
	}
	if a.AssigneeID != "" {
		if err := r.appendIndex(ctx, "actions:user:"+a.AssigneeID, a.ID); err != nil {
			return domain.ActionItem{}, err
		}
	}
	return a, nil
}

func (r Repo) appendIndex(ctx context.Context, key, id string) error {
	var ids []string
	if err := r.Store.Get(ctx, key, &ids); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	ids = append(ids, id)
	return r.Store.Set(ctx, key, ids)
}

func (r Repo) GetActionItem(ctx context.Context, id string) (domain.ActionItem, error) {
	var a domain.ActionItem
	if err := r.Store.Get(ctx, "action:"+id, &a); err != nil {
		return domain.ActionItem{}, notFound(err)
	}
	return a, nil
}

// UpdateActionItem applies a partial update. completedAt is set exactly when
// the item transitions to completed and cleared when it transitions back.
func (r Repo) UpdateActionItem(ctx context.Context, id string, up domain.ActionItemUpdate) (domain.ActionItem, error) {
	a, err := r.GetActionItem(ctx, id)
	if err != nil {
		return domain.ActionItem{}, err
	}
	if up.Description != nil {
		a.Description = *up.Description
	}
	if up.Assignee != nil {
		a.Assignee = *up.Assignee
	}
	if up.Completed != nil {
		switch {
		case *up.Completed && !a.Completed:
			ts := r.nowStr()
			a.CompletedAt = &ts
		case !*up.Completed && a.Completed:
			a.CompletedAt = nil
		}
		a.Completed = *up.Completed
	}
	if err := r.Store.Set(ctx, "action:"+a.ID, a); err != nil {
		return domain.ActionItem{}, err
	}
	return a, nil
}

func (r Repo) ListActionItemsByMeeting(ctx context.Context, meetingID string) ([]domain.ActionItem, error) {
	return r.listActionItems(ctx, "actions:meeting:"+meetingID, false)
}

func (r Repo) ListActionItemsByUser(ctx context.Context, userID string) ([]domain.ActionItem, error) {
	return r.listActionItems(ctx, "actions:user:"+userID, true)
}

func (r Repo) listActionItems(ctx context.Context, indexKey string, newestFirst bool) ([]domain.ActionItem, error) {
	var ids []string
	if err := r.Store.Get(ctx, indexKey, &ids); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var items []domain.ActionItem
	for _, id := range ids {
		a, err := r.GetActionItem(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, a)
	}
	if newestFirst {
		sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt > items[j].CreatedAt })
	}
	return items, nil
}

// --- invitations ---

type InvitationCreate struct {
	Name        string
	Email       string
	Position    string
	AccessLevel string
	Message     string
}

func (r Repo) CreateInvitation(ctx context.Context, fields InvitationCreate) (domain.Invitation, error) {
	inv := domain.Invitation{
		ID:          uuid.New().String(),
		Name:        fields.Name,
		Email:       fields.Email,
		Position:    fields.Position,
		AccessLevel: fields.AccessLevel,
		Message:     fields.Message,
		Status:      "pending",
		InvitedAt:   r.nowStr(),
	}
	if inv.AccessLevel == "" {
		inv.AccessLevel = domain.AssigneeDirectReport
	}
	if err := r.Store.Set(ctx, "invite:"+inv.ID, inv); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

func (r Repo) GetInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	var inv domain.Invitation
	if err := r.Store.Get(ctx, "invite:"+id, &inv); err != nil {
		return domain.Invitation{}, notFound(err)
	}
	return inv, nil
}

func (r Repo) ListInvitations(ctx context.Context) ([]domain.Invitation, error) {
	keys, err := r.Store.Scan(ctx, "invite:")
	if err != nil {
		return nil, err
	}
	var invs []domain.Invitation
	for _, k := range keys {
		var inv domain.Invitation
		if err := r.Store.Get(ctx, k, &inv); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		invs = append(invs, inv)
	}
	sort.SliceStable(invs, func(i, j int) bool { return invs[i].InvitedAt > invs[j].InvitedAt })
	return invs, nil
}

// TouchInvitation refreshes invitedAt (resend).
func (r Repo) TouchInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	inv, err := r.GetInvitation(ctx, id)
	if err != nil {
		return domain.Invitation{}, err
	}
	inv.InvitedAt = r.nowStr()
	if err := r.Store.Set(ctx, "invite:"+inv.ID, inv); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

func (r Repo) DeleteInvitation(ctx context.Context, id string) error {
	if _, err := r.GetInvitation(ctx, id); err != nil {
		return err
	}
	return r.Store.Delete(ctx, "invite:"+id)
}

// --- roadmap items ---

func (r Repo) UpsertRoadmapItem(ctx context.Context, item domain.RoadmapItem) (domain.RoadmapItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
		item.CreatedAt = r.nowStr()
	}
	if item.Status == "" {
		item.Status = "planning"
	}
	if err := r.Store.Set(ctx, "roadmap:"+item.ID, item); err != nil {
		return domain.RoadmapItem{}, err
	}
	return item, nil
}

func (r Repo) GetRoadmapItem(ctx context.Context, id string) (domain.RoadmapItem, error) {
	var item domain.RoadmapItem
	if err := r.Store.Get(ctx, "roadmap:"+id, &item); err != nil {
		return domain.RoadmapItem{}, notFound(err)
	}
	return item, nil
}

func (r Repo) ListRoadmapItems(ctx context.Context) ([]domain.RoadmapItem, error) {
	keys, err := r.Store.Scan(ctx, "roadmap:")
	if err != nil {
		return nil, err
	}
	var items []domain.RoadmapItem
	for _, k := range keys {
		var item domain.RoadmapItem
		if err := r.Store.Get(ctx, k, &item); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })
	return items, nil
}

func (r Repo) DeleteRoadmapItem(ctx context.Context, id string) error {
	if _, err := r.GetRoadmapItem(ctx, id); err != nil {
		return err
	}
	return r.Store.Delete(ctx, "roadmap:"+id)
}
