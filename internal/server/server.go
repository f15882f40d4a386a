// Package server exposes the HTTP API: roster, meetings, action items,
// roadmap, analytics and live meeting sessions.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"oneloop/internal/agenda"
	"oneloop/internal/analytics"
	"oneloop/internal/domain"
	"oneloop/internal/engine"
	"oneloop/internal/events"
	"oneloop/internal/integrations"
	"oneloop/internal/ledger"
	"oneloop/internal/repo"
	"oneloop/internal/session"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"meeting not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the OneLoop API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("OneLoop API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	sessions := newRegistry()

	registerHealth(group)
	registerMembers(group, cfg.Engine)
	registerInvitations(group, cfg.Engine)
	registerMeetings(group, cfg.Engine)
	registerActionItems(group, cfg.Engine)
	registerRoadmap(group, cfg.Engine)
	registerReport(group, cfg.Engine)
	registerIntegrations(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerSessions(group, cfg.Engine, sessions)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound),
		errors.Is(err, agenda.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, agenda.ErrDepthExceeded):
		return newAPIError(http.StatusUnprocessableEntity, "depth_exceeded", err.Error(), nil)
	case errors.Is(err, repo.ErrMeetingCompleted):
		return newAPIError(http.StatusConflict, "meeting_completed", err.Error(), nil)
	case errors.Is(err, session.ErrSessionEnded):
		return newAPIError(http.StatusConflict, "session_ended", err.Error(), nil)
	case errors.Is(err, integrations.ErrUnknownProvider):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, integrations.ErrConnectionFailed),
		errors.Is(err, integrations.ErrNotConnected):
		return newAPIError(http.StatusBadGateway, "integration_unavailable", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already exists"), strings.Contains(lowered, "already has"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-member",
		Method:        http.MethodPost,
		Path:          "/members",
		Summary:       "Add team member",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		u, err := e.AddMember(ctx, repo.UserCreate{
			Name:        input.Body.Name,
			Email:       input.Body.Email,
			Position:    input.Body.Position,
			AccessLevel: input.Body.AccessLevel,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/members",
		Summary:     "List team members",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		users, err := e.Members(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-member",
		Method:      http.MethodGet,
		Path:        "/members/{member_id}",
		Summary:     "Get team member",
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.Member(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-member",
		Method:      http.MethodPatch,
		Path:        "/members/{member_id}",
		Summary:     "Update team member",
	}, func(ctx context.Context, input *struct {
		MemberID string              `path:"member_id"`
		Body     UpdateMemberRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.UpdateMember(ctx, input.MemberID, repo.UserUpdate{
			Position:    input.Body.Position,
			AccessLevel: input.Body.AccessLevel,
			Status:      input.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/members/{member_id}",
		Summary:       "Remove team member",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct{}, error) {
		if err := e.RemoveMember(ctx, input.MemberID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "member-actions",
		Method:      http.MethodGet,
		Path:        "/members/{member_id}/actions",
		Summary:     "Action items assigned to member",
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct {
		Body []domain.ActionItem `json:"body"`
	}, error) {
		items, err := e.ActionItemsForUser(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ActionItem `json:"body"`
		}{Body: items}, nil
	})
}

func registerInvitations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-invitation",
		Method:        http.MethodPost,
		Path:          "/invitations",
		Summary:       "Invite team member",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateInvitationRequest `json:"body"`
	}) (*struct {
		Body domain.Invitation `json:"body"`
	}, error) {
		inv, err := e.InviteMember(ctx, repo.InvitationCreate{
			Name:        input.Body.Name,
			Email:       input.Body.Email,
			Position:    input.Body.Position,
			AccessLevel: input.Body.AccessLevel,
			Message:     input.Body.Message,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invitation `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invitations",
		Method:      http.MethodGet,
		Path:        "/invitations",
		Summary:     "List pending invitations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Invitation `json:"body"`
	}, error) {
		invs, err := e.Invitations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Invitation `json:"body"`
		}{Body: invs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resend-invitation",
		Method:      http.MethodPost,
		Path:        "/invitations/{invitation_id}/resend",
		Summary:     "Resend invitation",
	}, func(ctx context.Context, input *struct {
		InvitationID string `path:"invitation_id"`
	}) (*struct {
		Body domain.Invitation `json:"body"`
	}, error) {
		inv, err := e.ResendInvitation(ctx, input.InvitationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invitation `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "accept-invitation",
		Method:        http.MethodPost,
		Path:          "/invitations/{invitation_id}/accept",
		Summary:       "Accept invitation",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		InvitationID string `path:"invitation_id"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.AcceptInvitation(ctx, input.InvitationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cancel-invitation",
		Method:        http.MethodDelete,
		Path:          "/invitations/{invitation_id}",
		Summary:       "Cancel invitation",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		InvitationID string `path:"invitation_id"`
	}) (*struct{}, error) {
		if err := e.CancelInvitation(ctx, input.InvitationID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMeetings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "schedule-meeting",
		Method:        http.MethodPost,
		Path:          "/meetings",
		Summary:       "Schedule meeting",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body ScheduleMeetingRequest `json:"body"`
	}) (*struct {
		Body domain.Meeting `json:"body"`
	}, error) {
		if input.Body.TeamMemberID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "teamMemberId is required", nil)
		}
		m, err := e.ScheduleMeeting(ctx, input.Body.TeamMemberID, input.Body.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Meeting `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-meetings",
		Method:      http.MethodGet,
		Path:        "/meetings",
		Summary:     "List meetings",
	}, func(ctx context.Context, input *struct {
		MemberID string `query:"member_id"`
		Upcoming bool   `query:"upcoming"`
	}) (*struct {
		Body []domain.Meeting `json:"body"`
	}, error) {
		var (
			meetings []domain.Meeting
			err      error
		)
		switch {
		case input.MemberID != "":
			meetings, err = e.MeetingsFor(ctx, input.MemberID)
		case input.Upcoming:
			meetings, err = e.UpcomingMeetings(ctx)
		default:
			meetings, err = e.Meetings(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Meeting `json:"body"`
		}{Body: meetings}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-meeting",
		Method:      http.MethodGet,
		Path:        "/meetings/{meeting_id}",
		Summary:     "Get meeting",
	}, func(ctx context.Context, input *struct {
		MeetingID string `path:"meeting_id"`
	}) (*struct {
		Body domain.Meeting `json:"body"`
	}, error) {
		m, err := e.Meeting(ctx, input.MeetingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Meeting `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-meeting",
		Method:      http.MethodPatch,
		Path:        "/meetings/{meeting_id}",
		Summary:     "Update meeting",
	}, func(ctx context.Context, input *struct {
		MeetingID string               `path:"meeting_id"`
		Body      UpdateMeetingRequest `json:"body"`
	}) (*struct {
		Body domain.Meeting `json:"body"`
	}, error) {
		var (
			m   domain.Meeting
			err error
		)
		if input.Body.Date != nil {
			m, err = e.RescheduleMeeting(ctx, input.MeetingID, *input.Body.Date)
		} else {
			m, err = e.Repo.UpdateMeeting(ctx, input.MeetingID, domain.MeetingUpdate{
				Notes:              input.Body.Notes,
				TranscriptFileName: input.Body.TranscriptFileName,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Meeting `json:"body"`
		}{Body: m}, nil
	})
}

func registerActionItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "meeting-actions",
		Method:      http.MethodGet,
		Path:        "/meetings/{meeting_id}/actions",
		Summary:     "Action items for meeting",
	}, func(ctx context.Context, input *struct {
		MeetingID string `path:"meeting_id"`
	}) (*struct {
		Body []domain.ActionItem `json:"body"`
	}, error) {
		items, err := e.ActionItemsForMeeting(ctx, input.MeetingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ActionItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-action",
		Method:        http.MethodPost,
		Path:          "/meetings/{meeting_id}/actions",
		Summary:       "Create action item",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		MeetingID string                  `path:"meeting_id"`
		Body      CreateActionItemRequest `json:"body"`
	}) (*struct {
		Body domain.ActionItem `json:"body"`
	}, error) {
		if input.Body.Description == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "description is required", nil)
		}
		a, err := e.CreateActionItem(ctx, input.MeetingID, repo.ActionItemCreate{
			Description: input.Body.Description,
			Assignee:    input.Body.Assignee,
			AssigneeID:  input.Body.AssigneeID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionItem `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-action",
		Method:      http.MethodPatch,
		Path:        "/actions/{action_id}",
		Summary:     "Update action item",
	}, func(ctx context.Context, input *struct {
		ActionID string                  `path:"action_id"`
		Body     UpdateActionItemRequest `json:"body"`
	}) (*struct {
		Body domain.ActionItem `json:"body"`
	}, error) {
		a, err := e.UpdateActionItem(ctx, input.ActionID, domain.ActionItemUpdate{
			Description: input.Body.Description,
			Assignee:    input.Body.Assignee,
			Completed:   input.Body.Completed,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActionItem `json:"body"`
		}{Body: a}, nil
	})
}

func registerRoadmap(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "upsert-roadmap-item",
		Method:        http.MethodPost,
		Path:          "/roadmap",
		Summary:       "Create or update roadmap item",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body UpsertRoadmapItemRequest `json:"body"`
	}) (*struct {
		Body domain.RoadmapItem `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		item, err := e.UpsertRoadmapItem(ctx, domain.RoadmapItem{
			ID:          input.Body.ID,
			Type:        input.Body.Type,
			ParentID:    input.Body.ParentID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			AssigneeID:  input.Body.AssigneeID,
			Progress:    input.Body.Progress,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RoadmapItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-roadmap",
		Method:      http.MethodGet,
		Path:        "/roadmap",
		Summary:     "List roadmap items",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.RoadmapItem `json:"body"`
	}, error) {
		items, err := e.RoadmapItems(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.RoadmapItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-roadmap-item",
		Method:        http.MethodDelete,
		Path:          "/roadmap/{item_id}",
		Summary:       "Delete roadmap item",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct{}, error) {
		if err := e.DeleteRoadmapItem(ctx, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerReport(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "report",
		Method:      http.MethodGet,
		Path:        "/report",
		Summary:     "Analytics report",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body analytics.Report `json:"body"`
	}, error) {
		rep, err := e.Report(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.Report `json:"body"`
		}{Body: rep}, nil
	})
}

func registerIntegrations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "integration-status",
		Method:      http.MethodGet,
		Path:        "/integrations/{provider}",
		Summary:     "Integration status",
	}, func(ctx context.Context, input *struct {
		Provider string `path:"provider" enum:"teams,outlook"`
	}) (*struct {
		Body integrations.Status `json:"body"`
	}, error) {
		st, err := e.Integrations.GetStatus(ctx, input.Provider)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body integrations.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "connect-integration",
		Method:      http.MethodPost,
		Path:        "/integrations/{provider}/connect",
		Summary:     "Connect integration",
	}, func(ctx context.Context, input *struct {
		Provider string `path:"provider" enum:"teams,outlook"`
	}) (*struct {
		Body integrations.Status `json:"body"`
	}, error) {
		st, err := e.Integrations.Connect(ctx, input.Provider)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body integrations.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "disconnect-integration",
		Method:      http.MethodPost,
		Path:        "/integrations/{provider}/disconnect",
		Summary:     "Disconnect integration",
	}, func(ctx context.Context, input *struct {
		Provider string `path:"provider" enum:"teams,outlook"`
	}) (*struct {
		Body integrations.Status `json:"body"`
	}, error) {
		st, err := e.Integrations.Disconnect(ctx, input.Provider)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body integrations.Status `json:"body"`
		}{Body: st}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event log",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []events.Row `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		rows, err := e.Events.Latest(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []events.Row `json:"body"`
		}{Body: rows}, nil
	})
}
