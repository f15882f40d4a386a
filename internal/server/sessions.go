package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	"oneloop/internal/engine"
	"oneloop/internal/session"
)

// registry tracks the live sessions owned by this process, keyed by meeting
// id. One live session per meeting.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newRegistry() *registry {
	return &registry{sessions: map[string]*session.Session{}}
}

func (r *registry) put(s *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.MeetingID()]; exists {
		return false
	}
	r.sessions[s.MeetingID()] = s
	return true
}

func (r *registry) get(meetingID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[meetingID]
	return s, ok
}

func (r *registry) drop(meetingID string) {
	r.mu.Lock()
	delete(r.sessions, meetingID)
	r.mu.Unlock()
}

func registerSessions(api huma.API, e engine.Engine, reg *registry) {
	type sessionPath struct {
		MeetingID string `path:"meeting_id"`
	}
	type snapshotOut struct {
		Body session.Snapshot `json:"body"`
	}

	lookup := func(meetingID string) (*session.Session, huma.StatusError) {
		s, ok := reg.get(meetingID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no live session for meeting", nil)
		}
		return s, nil
	}
	snap := func(s *session.Session) *snapshotOut {
		return &snapshotOut{Body: s.Snapshot()}
	}

	huma.Register(api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/meetings/{meeting_id}/session",
		Summary:       "Start live session",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *sessionPath) (*snapshotOut, error) {
		if _, exists := reg.get(input.MeetingID); exists {
			return nil, newAPIError(http.StatusConflict, "conflict", "session already running for meeting", nil)
		}
		s, err := e.StartSession(ctx, input.MeetingID, nil)
		if err != nil {
			return nil, handleError(err)
		}
		if !reg.put(s) {
			_ = s.Cancel()
			return nil, newAPIError(http.StatusConflict, "conflict", "session already running for meeting", nil)
		}
		return snap(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-snapshot",
		Method:      http.MethodGet,
		Path:        "/sessions/{meeting_id}",
		Summary:     "Session snapshot",
	}, func(ctx context.Context, input *sessionPath) (*snapshotOut, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		return snap(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "session-add-point",
		Method:        http.MethodPost,
		Path:          "/sessions/{meeting_id}/points",
		Summary:       "Add discussion point",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		MeetingID string          `path:"meeting_id"`
		Body      AddPointRequest `json:"body"`
	}) (*struct {
		Body IDResponse `json:"body"`
	}, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		var (
			id  string
			err error
		)
		if input.Body.ParentID == "" {
			id, err = s.AddDiscussionPoint(input.Body.Text)
		} else {
			id, err = s.AddSubPoint(input.Body.ParentID, input.Body.Text)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IDResponse `json:"body"`
		}{Body: IDResponse{ID: id}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-update-point",
		Method:      http.MethodPatch,
		Path:        "/sessions/{meeting_id}/points/{point_id}",
		Summary:     "Update discussion point",
	}, func(ctx context.Context, input *struct {
		MeetingID string             `path:"meeting_id"`
		PointID   string             `path:"point_id"`
		Body      UpdatePointRequest `json:"body"`
	}) (*snapshotOut, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		if input.Body.Text != nil {
			if err := s.UpdateDiscussionPoint(input.PointID, *input.Body.Text); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Toggle {
			if err := s.ToggleDiscussionPoint(input.PointID); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.LinkedRoadmapID != nil {
			if err := s.LinkRoadmapItem(input.PointID, *input.Body.LinkedRoadmapID); err != nil {
				return nil, handleError(err)
			}
		}
		return snap(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "session-remove-point",
		Method:        http.MethodDelete,
		Path:          "/sessions/{meeting_id}/points/{point_id}",
		Summary:       "Remove discussion point",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		MeetingID string `path:"meeting_id"`
		PointID   string `path:"point_id"`
	}) (*struct{}, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		if err := s.RemoveDiscussionPoint(input.PointID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "session-add-action",
		Method:        http.MethodPost,
		Path:          "/sessions/{meeting_id}/actions",
		Summary:       "Add action item",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		MeetingID string                  `path:"meeting_id"`
		Body      AddSessionActionRequest `json:"body"`
	}) (*struct {
		Body IDResponse `json:"body"`
	}, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		id, err := s.AddActionItem(input.Body.Description, input.Body.Assignee)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IDResponse `json:"body"`
		}{Body: IDResponse{ID: id}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-update-action",
		Method:      http.MethodPatch,
		Path:        "/sessions/{meeting_id}/actions/{action_id}",
		Summary:     "Update action item",
	}, func(ctx context.Context, input *struct {
		MeetingID string                     `path:"meeting_id"`
		ActionID  string                     `path:"action_id"`
		Body      UpdateSessionActionRequest `json:"body"`
	}) (*snapshotOut, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		if input.Body.Description != nil {
			if err := s.UpdateActionItemDescription(input.ActionID, *input.Body.Description); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Assignee != nil {
			if err := s.UpdateActionItemAssignee(input.ActionID, *input.Body.Assignee); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Toggle {
			if err := s.ToggleActionItem(input.ActionID); err != nil {
				return nil, handleError(err)
			}
		}
		return snap(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "session-remove-action",
		Method:        http.MethodDelete,
		Path:          "/sessions/{meeting_id}/actions/{action_id}",
		Summary:       "Remove action item",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		MeetingID string `path:"meeting_id"`
		ActionID  string `path:"action_id"`
	}) (*struct{}, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		if err := s.RemoveActionItem(input.ActionID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-notes",
		Method:      http.MethodPatch,
		Path:        "/sessions/{meeting_id}/notes",
		Summary:     "Update notes or transcript",
	}, func(ctx context.Context, input *struct {
		MeetingID string              `path:"meeting_id"`
		Body      SessionNotesRequest `json:"body"`
	}) (*snapshotOut, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		if input.Body.Notes != nil {
			if err := s.SetNotes(*input.Body.Notes); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.Transcript != nil {
			if err := s.AttachTranscript(*input.Body.Transcript); err != nil {
				return nil, handleError(err)
			}
		}
		return snap(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{meeting_id}/end",
		Summary:     "End session",
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body session.Summary `json:"body"`
	}, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		sum, err := e.FinishSession(ctx, s)
		if err != nil {
			return nil, handleError(err)
		}
		reg.drop(input.MeetingID)
		return &struct {
			Body session.Summary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-session",
		Method:        http.MethodPost,
		Path:          "/sessions/{meeting_id}/cancel",
		Summary:       "Cancel session",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *sessionPath) (*struct{}, error) {
		s, herr := lookup(input.MeetingID)
		if herr != nil {
			return nil, herr
		}
		if err := e.CancelSession(ctx, s); err != nil {
			return nil, handleError(err)
		}
		reg.drop(input.MeetingID)
		return &struct{}{}, nil
	})
}
