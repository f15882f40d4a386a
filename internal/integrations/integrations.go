// Package integrations simulates the Teams and Outlook connections: no real
// protocol traffic, but connection status is persisted and the artifacts
// (summary emails, calendar events) are rendered for real.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"oneloop/internal/domain"
	"oneloop/internal/session"
	"oneloop/internal/store"
)

const (
	ProviderTeams   = "teams"
	ProviderOutlook = "outlook"
)

var (
	ErrUnknownProvider = errors.New("unknown integration provider")
	ErrNotConnected    = errors.New("integration not connected")
	// ErrConnectionFailed is the simulated transient failure.
	ErrConnectionFailed = errors.New("connection failed, try again")
)

type Status struct {
	Provider    string `json:"provider"`
	Connected   bool   `json:"connected"`
	ConnectedAt string `json:"connectedAt,omitempty" format:"date-time"`
	LastSync    string `json:"lastSync,omitempty" format:"date-time"`
}

// Manager persists integration state in the key-value store. Rand is the
// simulated-failure source; tests pin it.
type Manager struct {
	Store store.Store
	Now   func() time.Time
	Rand  func() float64
}

func New(s store.Store) Manager {
	return Manager{Store: s, Now: time.Now, Rand: rand.Float64}
}

func (m Manager) nowStr() string {
	now := m.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func key(provider string) (string, error) {
	switch provider {
	case ProviderTeams, ProviderOutlook:
		return "integration:" + provider, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

// Connect establishes the simulated connection. Roughly one attempt in ten
// fails with ErrConnectionFailed, matching the demo behavior.
func (m Manager) Connect(ctx context.Context, provider string) (Status, error) {
	k, err := key(provider)
	if err != nil {
		return Status{}, err
	}
	r := m.Rand
	if r == nil {
		r = rand.Float64
	}
	if r() < 0.1 {
		return Status{}, ErrConnectionFailed
	}
	st := Status{Provider: provider, Connected: true, ConnectedAt: m.nowStr()}
	if err := m.Store.Set(ctx, k, st); err != nil {
		return Status{}, err
	}
	return st, nil
}

func (m Manager) Disconnect(ctx context.Context, provider string) (Status, error) {
	k, err := key(provider)
	if err != nil {
		return Status{}, err
	}
	st := Status{Provider: provider, Connected: false}
	if err := m.Store.Set(ctx, k, st); err != nil {
		return Status{}, err
	}
	return st, nil
}

func (m Manager) GetStatus(ctx context.Context, provider string) (Status, error) {
	k, err := key(provider)
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := m.Store.Get(ctx, k, &st); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Status{Provider: provider}, nil
		}
		return Status{}, err
	}
	return st, nil
}

// MarkSynced stamps lastSync on a connected provider.
func (m Manager) MarkSynced(ctx context.Context, provider string) (Status, error) {
	st, err := m.GetStatus(ctx, provider)
	if err != nil {
		return Status{}, err
	}
	if !st.Connected {
		return Status{}, fmt.Errorf("%w: %s", ErrNotConnected, provider)
	}
	st.LastSync = m.nowStr()
	k, _ := key(provider)
	if err := m.Store.Set(ctx, k, st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Email is the rendered summary mail. Nothing is actually sent.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RenderSummaryEmail formats a session summary as the follow-up email sent
// to the team member after a meeting.
func RenderSummaryEmail(sum session.Summary, recipient string) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", sum.TeamMember)
	fmt.Fprintf(&b, "Here is the summary of our 1-on-1 on %s.\n\n", sum.Date)
	fmt.Fprintf(&b, "Duration: %d minutes\n", sum.DurationMinutes)
	fmt.Fprintf(&b, "Standard questions covered: %d of %d\n", sum.CompletedStandardQuestions, sum.StandardQuestionCount)
	fmt.Fprintf(&b, "Discussion points completed: %d\n", sum.CompletedDiscussionPoints)
	fmt.Fprintf(&b, "Action items: %d\n", sum.TotalActionItems)
	if sum.HasTranscript {
		b.WriteString("A transcript is attached to the meeting record.\n")
	}
	b.WriteString("\nThanks!\n")
	return Email{
		To:      recipient,
		Subject: fmt.Sprintf("1-on-1 summary: %s", sum.Date),
		Body:    b.String(),
	}
}

// CalendarEvent is the Outlook event shape for a scheduled meeting.
type CalendarEvent struct {
	Subject   string   `json:"subject"`
	Start     string   `json:"start" format:"date-time"`
	End       string   `json:"end" format:"date-time"`
	Attendees []string `json:"attendees"`
}

// BuildCalendarEvent constructs the event for a scheduled meeting. Duration
// defaults to 30 minutes when the meeting has none recorded.
func BuildCalendarEvent(m domain.Meeting, member domain.User, manager string) (CalendarEvent, error) {
	start, err := time.Parse(time.RFC3339, m.Date)
	if err != nil {
		return CalendarEvent{}, fmt.Errorf("meeting date: %w", err)
	}
	length := 30 * time.Minute
	if m.Duration > 0 {
		length = time.Duration(m.Duration) * time.Second
	}
	attendees := []string{manager}
	if member.Email != "" {
		attendees = append(attendees, member.Email)
	}
	return CalendarEvent{
		Subject:   fmt.Sprintf("1-on-1: %s", member.Name),
		Start:     start.UTC().Format(time.RFC3339),
		End:       start.Add(length).UTC().Format(time.RFC3339),
		Attendees: attendees,
	}, nil
}
