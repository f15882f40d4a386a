// Package session runs one live 1-on-1 meeting: it owns the discussion-point
// tree and the action-item ledger, drives the duration ticker, and pushes
// every mutation through an asynchronous coalesced save. Persistence failures
// degrade the session instead of aborting it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"oneloop/internal/agenda"
	"oneloop/internal/domain"
	"oneloop/internal/ledger"
	"oneloop/internal/repo"
)

type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateEnding       State = "ending"
	StateEnded        State = "ended"
)

var (
	// ErrSessionEnded rejects mutations and end calls after the session has
	// ended or been cancelled.
	ErrSessionEnded = errors.New("session already ended")
)

// Persister is the slice of the repository a session needs. repo.Repo
// satisfies it.
type Persister interface {
	GetMeeting(ctx context.Context, id string) (domain.Meeting, error)
	UpdateMeeting(ctx context.Context, id string, up domain.MeetingUpdate) (domain.Meeting, error)
	CreateActionItem(ctx context.Context, meetingID string, fields repo.ActionItemCreate) (domain.ActionItem, error)
	UpdateActionItem(ctx context.Context, id string, up domain.ActionItemUpdate) (domain.ActionItem, error)
	ListActionItemsByMeeting(ctx context.Context, meetingID string) ([]domain.ActionItem, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// SnapshotCache takes the full working set when a save fails. Writes must
// not fail for reasons the session can do anything about. cache.Dir
// satisfies it.
type SnapshotCache interface {
	WriteSnapshot(meetingID string, state any) error
}

// Notification kinds pushed to the Notifier.
const (
	NoteTick      = "tick"
	NoteSaved     = "saved"
	NoteDegraded  = "degraded"
	NoteRecovered = "recovered"
	NoteEnded     = "ended"
)

type Notification struct {
	Kind    string
	Message string
}

// Notifier receives session events. Rendering layers subscribe here instead
// of hooking individual mutations. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type Options struct {
	MeetingID string
	Persister Persister
	Cache     SnapshotCache
	Notifier  Notifier
	// Questions seeds the standard questions into the tree when the meeting
	// does not carry them yet.
	Questions []string
	MaxDepth  int
	Now       func() time.Time
	// TickInterval defaults to one second; negative disables the ticker.
	TickInterval time.Duration
}

type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	state      State
	meeting    domain.Meeting
	memberName string
	tree       *agenda.Tree
	ledger     *ledger.Ledger
	notes      string
	transcript *string

	persister Persister
	sync      syncer
	notifier  Notifier
	now       func() time.Time
	startedAt time.Time
	endedAt   time.Time

	degraded  bool
	saving    bool
	pending   bool
	cancelled bool

	stopTick chan struct{}
	tickDone chan struct{}
}

// Start loads the meeting, seeds the standard questions, and activates the
// session. The meeting must exist and still be scheduled.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.Persister == nil {
		return nil, errors.New("session: persister is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m, err := opts.Persister.GetMeeting(ctx, opts.MeetingID)
	if err != nil {
		return nil, err
	}
	if m.Status == domain.MeetingCompleted {
		return nil, repo.ErrMeetingCompleted
	}
	memberName := m.TeamMemberID
	if u, err := opts.Persister.GetUser(ctx, m.TeamMemberID); err == nil {
		memberName = u.Name
	}

	s := &Session{
		state:      StateInitializing,
		meeting:    m,
		memberName: memberName,
		tree:       agenda.Load(m.DiscussionPoints, opts.MaxDepth),
		ledger:     ledger.New(m.ID),
		notes:      m.Notes,
		transcript: m.TranscriptFileName,
		persister:  opts.Persister,
		sync:       syncer{persister: opts.Persister, cache: opts.Cache},
		notifier:   opts.Notifier,
		now:        now,
		stopTick:   make(chan struct{}),
		tickDone:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.tree.SeedStandardQuestions(opts.Questions)
	if existing, err := opts.Persister.ListActionItemsByMeeting(ctx, m.ID); err == nil {
		s.ledger.LoadPersisted(existing)
	} else {
		// The session still opens, but with an empty ledger; flag it so the
		// rendering layer can warn, and let the next good save clear it.
		s.degraded = true
		s.notify(Notification{Kind: NoteDegraded, Message: fmt.Sprintf("could not load action items: %v", err)})
	}

	s.startedAt = now()
	s.state = StateActive

	interval := opts.TickInterval
	if interval == 0 {
		interval = time.Second
	}
	if interval > 0 {
		go s.runTicker(interval)
	} else {
		close(s.tickDone)
	}
	return s, nil
}

func (s *Session) runTicker(interval time.Duration) {
	defer close(s.tickDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stopTick:
			return
		case <-t.C:
			s.notify(Notification{Kind: NoteTick, Message: s.ElapsedDisplay()})
		}
	}
}

func (s *Session) notify(n Notification) {
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) MeetingID() string { return s.meeting.ID }

// ElapsedSeconds is derived from the injected clock, not the tick count, so
// it stays exact under test clocks.
func (s *Session) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() int {
	end := s.now()
	if !s.endedAt.IsZero() {
		end = s.endedAt
	}
	d := end.Sub(s.startedAt)
	if d < 0 {
		return 0
	}
	return int(d.Seconds())
}

// ElapsedDisplay formats the elapsed time as mm:ss.
func (s *Session) ElapsedDisplay() string {
	secs := s.ElapsedSeconds()
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// --- tree mutations ---

func (s *Session) AddDiscussionPoint(text string) (string, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return "", ErrSessionEnded
	}
	id := s.tree.AddRoot(text)
	s.mu.Unlock()
	s.scheduleSave()
	return id, nil
}

func (s *Session) AddSubPoint(parentID, text string) (string, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return "", ErrSessionEnded
	}
	id, err := s.tree.AddChild(parentID, text)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.scheduleSave()
	return id, nil
}

func (s *Session) ToggleDiscussionPoint(id string) error {
	return s.mutate(func() error { return s.tree.ToggleCompleted(id) })
}

func (s *Session) UpdateDiscussionPoint(id, text string) error {
	return s.mutate(func() error { return s.tree.UpdateText(id, text) })
}

func (s *Session) RemoveDiscussionPoint(id string) error {
	return s.mutate(func() error { return s.tree.Remove(id) })
}

func (s *Session) LinkRoadmapItem(pointID, roadmapID string) error {
	return s.mutate(func() error { return s.tree.LinkRoadmap(pointID, roadmapID) })
}

func (s *Session) mutate(apply func() error) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	err := apply()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.scheduleSave()
	return nil
}

// --- ledger mutations ---

func (s *Session) AddActionItem(description, assignee string) (string, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return "", ErrSessionEnded
	}
	id := s.ledger.Add(description, assignee)
	s.mu.Unlock()
	s.scheduleSave()
	return id, nil
}

func (s *Session) ToggleActionItem(id string) error {
	return s.mutate(func() error { return s.ledger.Toggle(id) })
}

func (s *Session) UpdateActionItemDescription(id, text string) error {
	return s.mutate(func() error { return s.ledger.UpdateDescription(id, text) })
}

func (s *Session) UpdateActionItemAssignee(id, assignee string) error {
	return s.mutate(func() error { return s.ledger.UpdateAssignee(id, assignee) })
}

func (s *Session) RemoveActionItem(id string) error {
	return s.mutate(func() error { return s.ledger.Remove(id) })
}

// --- notes and transcript ---

func (s *Session) SetNotes(text string) error {
	return s.mutate(func() error { s.notes = text; return nil })
}

func (s *Session) AttachTranscript(fileName string) error {
	return s.mutate(func() error { s.transcript = &fileName; return nil })
}

// --- save scheduling ---

// scheduleSave starts the save loop if idle, otherwise queues exactly one
// follow-up run. The queued run picks up whatever the state is when it
// actually dequeues.
func (s *Session) scheduleSave() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	if s.saving {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.saving = true
	s.mu.Unlock()
	go s.saveLoop()
}

func (s *Session) saveLoop() {
	for {
		snap := s.workingSet(false)
		s.runSave(context.Background(), snap)

		s.mu.Lock()
		if !s.pending || s.state != StateActive {
			s.saving = false
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
	}
}

func (s *Session) runSave(ctx context.Context, snap workingSet) {
	err := s.sync.save(ctx, snap, s.ledger)

	s.mu.Lock()
	wasDegraded := s.degraded
	s.degraded = err != nil
	if err == nil {
		s.ledger.MarkClean()
	}
	s.mu.Unlock()

	switch {
	case err != nil:
		s.notify(Notification{Kind: NoteDegraded, Message: err.Error()})
	case wasDegraded:
		s.notify(Notification{Kind: NoteRecovered, Message: "changes synced"})
	default:
		s.notify(Notification{Kind: NoteSaved})
	}
}

// workingSet snapshots everything a save needs while holding the lock.
func (s *Session) workingSet(final bool) workingSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := workingSet{
		meetingID:  s.meeting.ID,
		points:     s.tree.Points(),
		questions:  completedQuestions(s.meeting.StandardQuestions, s.tree),
		notes:      s.notes,
		transcript: s.transcript,
		items:      s.ledger.Items(),
		modified:   s.now().UTC().Format(time.RFC3339),
	}
	if final {
		ws.complete = true
		ws.duration = s.elapsedLocked()
		end := s.endedAt.UTC().Format(time.RFC3339)
		ws.endTime = &end
	}
	return ws
}

// completedQuestions mirrors completion of standard-question roots back onto
// the meeting's standard-question records, matched by text.
func completedQuestions(qs []domain.StandardQuestion, t *agenda.Tree) []domain.StandardQuestion {
	done := map[string]bool{}
	for _, fp := range t.Flatten() {
		if fp.Depth == 1 && fp.Point.IsStandardQuestion && fp.Point.Completed {
			done[fp.Point.Text] = true
		}
	}
	out := make([]domain.StandardQuestion, len(qs))
	copy(out, qs)
	for i := range out {
		out[i].Completed = done[out[i].Text]
	}
	return out
}

// --- ending ---

// ConfirmEnd stops the ticker, waits out any in-flight save, marks the
// meeting completed with its end time and duration, runs one final
// synchronous save, and returns the summary. A second call fails with
// ErrSessionEnded. A failing final save degrades the session but the meeting
// record stays authoritative in the cache snapshot.
func (s *Session) ConfirmEnd(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return Summary{}, ErrSessionEnded
	}
	s.state = StateEnding
	s.endedAt = s.now()
	close(s.stopTick)
	s.pending = false
	for s.saving {
		s.cond.Wait()
	}
	s.mu.Unlock()
	<-s.tickDone

	snap := s.workingSet(true)
	s.runSave(ctx, snap)

	s.mu.Lock()
	s.state = StateEnded
	s.meeting.Status = domain.MeetingCompleted
	s.meeting.Duration = snap.duration
	s.meeting.EndTime = snap.endTime
	summary := s.summaryLocked()
	s.mu.Unlock()

	s.notify(Notification{Kind: NoteEnded, Message: summary.TeamMember})
	return summary, nil
}

// Cancel tears the session down without completing the meeting. Queued saves
// beyond the in-flight one are abandoned; edits covered by the last
// successful save persist, later ones do not.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	s.state = StateEnded
	s.cancelled = true
	s.endedAt = s.now()
	s.pending = false
	close(s.stopTick)
	s.mu.Unlock()
	<-s.tickDone
	return nil
}

// Cancelled reports whether the session ended via Cancel.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// --- summary ---

type Summary struct {
	MeetingID                  string `json:"meetingId"`
	TeamMember                 string `json:"teamMember"`
	Date                       string `json:"date"`
	DurationMinutes            int    `json:"durationMinutes"`
	CompletedStandardQuestions int    `json:"completedStandardQuestions"`
	StandardQuestionCount      int    `json:"standardQuestionCount"`
	CompletedDiscussionPoints  int    `json:"completedDiscussionPoints"`
	TotalActionItems           int    `json:"totalActionItems"`
	HasTranscript              bool   `json:"hasTranscript"`
}

// Summary is computed from current state only; calling it does not mutate
// the session.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() Summary {
	date := s.meeting.Date
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		date = t.Format("Monday, January 2, 2006")
	}
	return Summary{
		MeetingID:                  s.meeting.ID,
		TeamMember:                 s.memberName,
		Date:                       date,
		DurationMinutes:            s.elapsedLocked() / 60,
		CompletedStandardQuestions: s.tree.CountCompletedStandard(),
		StandardQuestionCount:      len(s.meeting.StandardQuestions),
		CompletedDiscussionPoints:  s.tree.CountCompleted(),
		TotalActionItems:           s.ledger.Len(),
		HasTranscript:              s.transcript != nil && *s.transcript != "",
	}
}

// --- snapshot for rendering and the HTTP surface ---

type Snapshot struct {
	MeetingID      string                   `json:"meetingId"`
	State          State                    `json:"state"`
	ElapsedSeconds int                      `json:"elapsedSeconds"`
	Elapsed        string                   `json:"elapsed"`
	Degraded       bool                     `json:"degraded"`
	Points         []domain.DiscussionPoint `json:"discussionPoints"`
	ActionItems    []ledger.Item            `json:"actionItems"`
	Notes          string                   `json:"notes,omitempty"`
	Transcript     *string                  `json:"transcriptFileName,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	secs := s.elapsedLocked()
	return Snapshot{
		MeetingID:      s.meeting.ID,
		State:          s.state,
		ElapsedSeconds: secs,
		Elapsed:        fmt.Sprintf("%02d:%02d", secs/60, secs%60),
		Degraded:       s.degraded,
		Points:         s.tree.Points(),
		ActionItems:    s.ledger.Items(),
		Notes:          s.notes,
		Transcript:     s.transcript,
	}
}

// Flatten exposes the pre-order rendering sequence of the tree.
func (s *Session) Flatten() []agenda.FlatPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Flatten()
}
