package server

// Request payloads

type CreateMemberRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Position    string `json:"position,omitempty"`
	AccessLevel string `json:"accessLevel,omitempty" enum:"manager,direct-report"`
}

type UpdateMemberRequest struct {
	Position    *string `json:"position,omitempty"`
	AccessLevel *string `json:"accessLevel,omitempty" enum:"manager,direct-report"`
	Status      *string `json:"status,omitempty" enum:"active,inactive,pending"`
}

type CreateInvitationRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Position    string `json:"position,omitempty"`
	AccessLevel string `json:"accessLevel,omitempty" enum:"manager,direct-report"`
	Message     string `json:"message,omitempty"`
}

type ScheduleMeetingRequest struct {
	TeamMemberID string `json:"teamMemberId"`
	Date         string `json:"date,omitempty" format:"date-time"`
}

type UpdateMeetingRequest struct {
	Notes              *string `json:"notes,omitempty"`
	Date               *string `json:"date,omitempty" format:"date-time"`
	TranscriptFileName *string `json:"transcriptFileName,omitempty"`
}

type CreateActionItemRequest struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty" enum:"manager,direct-report"`
	AssigneeID  string `json:"assigneeId,omitempty"`
}

type UpdateActionItemRequest struct {
	Description *string `json:"description,omitempty"`
	Assignee    *string `json:"assignee,omitempty" enum:"manager,direct-report"`
	Completed   *bool   `json:"completed,omitempty"`
}

type UpsertRoadmapItemRequest struct {
	ID          string  `json:"id,omitempty"`
	Type        string  `json:"type" enum:"theme,epic,story"`
	ParentID    *string `json:"parentId,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty" enum:"planning,in-progress,done"`
	Priority    string  `json:"priority,omitempty" enum:"low,medium,high"`
	AssigneeID  string  `json:"assigneeId,omitempty"`
	Progress    int     `json:"progress,omitempty" minimum:"0" maximum:"100"`
}

// Session payloads

type AddPointRequest struct {
	Text     string `json:"text"`
	ParentID string `json:"parentId,omitempty"`
}

type UpdatePointRequest struct {
	Text            *string `json:"text,omitempty"`
	Toggle          bool    `json:"toggle,omitempty"`
	LinkedRoadmapID *string `json:"linkedRoadmapId,omitempty"`
}

type AddSessionActionRequest struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty" enum:"manager,direct-report"`
}

type UpdateSessionActionRequest struct {
	Description *string `json:"description,omitempty"`
	Assignee    *string `json:"assignee,omitempty" enum:"manager,direct-report"`
	Toggle      bool    `json:"toggle,omitempty"`
}

type SessionNotesRequest struct {
	Notes      *string `json:"notes,omitempty"`
	Transcript *string `json:"transcriptFileName,omitempty"`
}

// Responses

type IDResponse struct {
	ID string `json:"id"`
}
