package session

import (
	"context"
	"errors"
	"fmt"

	"oneloop/internal/domain"
	"oneloop/internal/ledger"
	"oneloop/internal/repo"
)

// ErrSyncFailed wraps any persistence failure during a save. It surfaces
// through the Notifier as degraded mode, never as a fatal error.
var ErrSyncFailed = errors.New("sync failed")

// workingSet is the immutable copy of session state a single save run
// operates on.
type workingSet struct {
	meetingID  string
	points     []domain.DiscussionPoint
	questions  []domain.StandardQuestion
	notes      string
	transcript *string
	items      []ledger.Item
	modified   string

	complete bool
	duration int
	endTime  *string
}

type syncer struct {
	persister Persister
	cache     SnapshotCache
}

// save pushes the working set to the store. The meeting update always carries
// the discussion points and lastModified. Action items sync individually:
// pending items with a non-empty description are created and their temporary
// id reconciled in the ledger; persisted items are updated in place. A
// failure on one item does not stop the others. On any failure the full
// working set goes to the durable cache and the joined error is returned.
func (y syncer) save(ctx context.Context, ws workingSet, led *ledger.Ledger) error {
	var errs []error

	up := domain.MeetingUpdate{
		DiscussionPoints:   &ws.points,
		StandardQuestions:  &ws.questions,
		Notes:              &ws.notes,
		LastModified:       &ws.modified,
		TranscriptFileName: ws.transcript,
	}
	if ws.complete {
		status := domain.MeetingCompleted
		up.Status = &status
		up.Duration = &ws.duration
		up.EndTime = ws.endTime
	}
	if _, err := y.persister.UpdateMeeting(ctx, ws.meetingID, up); err != nil {
		errs = append(errs, fmt.Errorf("meeting %s: %w", ws.meetingID, err))
	}

	for _, it := range ws.items {
		if it.Description == "" {
			continue
		}
		if it.Pending {
			created, err := y.persister.CreateActionItem(ctx, ws.meetingID, repo.ActionItemCreate{
				Description: it.Description,
				Assignee:    it.Assignee,
				AssigneeID:  it.AssigneeID,
				Completed:   it.Completed,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("create action item: %w", err))
				continue
			}
			if err := led.Reconcile(it.ID, created); err != nil && !errors.Is(err, ledger.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		_, err := y.persister.UpdateActionItem(ctx, it.ID, domain.ActionItemUpdate{
			Description: ptr(it.Description),
			Assignee:    ptr(it.Assignee),
			Completed:   ptr(it.Completed),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("action item %s: %w", it.ID, err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	if y.cache != nil {
		if err := y.cache.WriteSnapshot(ws.meetingID, fallbackState(ws)); err != nil {
			errs = append(errs, fmt.Errorf("write fallback snapshot: %w", err))
		}
	}
	return fmt.Errorf("%w: %w", ErrSyncFailed, errors.Join(errs...))
}

// FallbackState is the shape written to the durable cache when a save fails.
type FallbackState struct {
	DiscussionPoints   []domain.DiscussionPoint  `json:"discussionPoints"`
	StandardQuestions  []domain.StandardQuestion `json:"standardQuestions"`
	Notes              string                    `json:"notes,omitempty"`
	TranscriptFileName *string                   `json:"transcriptFileName,omitempty"`
	ActionItems        []ledger.Item             `json:"actionItems"`
	LastModified       string                    `json:"lastModified"`
	Completed          bool                      `json:"completed,omitempty"`
	Duration           int                       `json:"duration,omitempty"`
	EndTime            *string                   `json:"endTime,omitempty"`
}

func fallbackState(ws workingSet) FallbackState {
	return FallbackState{
		DiscussionPoints:   ws.points,
		StandardQuestions:  ws.questions,
		Notes:              ws.notes,
		TranscriptFileName: ws.transcript,
		ActionItems:        ws.items,
		LastModified:       ws.modified,
		Completed:          ws.complete,
		Duration:           ws.duration,
		EndTime:            ws.endTime,
	}
}

func ptr[T any](v T) *T { return &v }
