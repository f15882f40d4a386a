package domain

// Meeting statuses.
const (
	MeetingScheduled = "scheduled"
	MeetingCompleted = "completed"
)

// Assignee role tags for action items.
const (
	AssigneeManager      = "manager"
	AssigneeDirectReport = "direct-report"
)

type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Position    string `json:"position,omitempty"`
	AccessLevel string `json:"accessLevel" enum:"manager,direct-report"`
	Status      string `json:"status" enum:"active,inactive,pending"`
	CreatedAt   string `json:"createdAt" format:"date-time"`
}

type Invitation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Position    string `json:"position,omitempty"`
	AccessLevel string `json:"accessLevel"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status" enum:"pending,accepted,cancelled"`
	InvitedAt   string `json:"invitedAt" format:"date-time"`
}

// DiscussionPoint is one agenda item in a meeting, possibly with nested
// sub-points. Children are exclusively owned by their parent; max nesting
// depth is 4 levels including the root.
type DiscussionPoint struct {
	ID                 string            `json:"id"`
	Text               string            `json:"text"`
	Completed          bool              `json:"completed"`
	Children           []DiscussionPoint `json:"children,omitempty"`
	IsStandardQuestion bool              `json:"isStandardQuestion,omitempty"`
	LinkedRoadmapID    *string           `json:"linkedRoadmapId,omitempty"`
	AddedDuringMeeting bool              `json:"addedDuringMeeting,omitempty"`
}

// StandardQuestion is one of the fixed recurring questions attached to a
// meeting record at creation time.
type StandardQuestion struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Notes     string `json:"notes,omitempty"`
}

type Meeting struct {
	ID                 string             `json:"id"`
	TeamMemberID       string             `json:"teamMemberId"`
	ManagerID          string             `json:"managerId"`
	Date               string             `json:"date" format:"date-time"`
	Status             string             `json:"status" enum:"scheduled,completed"`
	DiscussionPoints   []DiscussionPoint  `json:"discussionPoints"`
	StandardQuestions  []StandardQuestion `json:"standardQuestions"`
	Notes              string             `json:"notes,omitempty"`
	Duration           int                `json:"duration,omitempty"`
	EndTime            *string            `json:"endTime,omitempty" format:"date-time"`
	TranscriptFileName *string            `json:"transcriptFileName,omitempty"`
	CreatedAt          string             `json:"createdAt" format:"date-time"`
	LastModified       string             `json:"lastModified" format:"date-time"`
}

// MeetingUpdate carries a partial update; nil fields are left untouched.
type MeetingUpdate struct {
	DiscussionPoints   *[]DiscussionPoint  `json:"discussionPoints,omitempty"`
	StandardQuestions  *[]StandardQuestion `json:"standardQuestions,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	Status             *string             `json:"status,omitempty" enum:"scheduled,completed"`
	Duration           *int                `json:"duration,omitempty"`
	EndTime            *string             `json:"endTime,omitempty" format:"date-time"`
	TranscriptFileName *string             `json:"transcriptFileName,omitempty"`
	LastModified       *string             `json:"lastModified,omitempty" format:"date-time"`
	Date               *string             `json:"date,omitempty" format:"date-time"`
}

type ActionItem struct {
	ID          string  `json:"id"`
	MeetingID   string  `json:"meetingId"`
	Description string  `json:"description"`
	Assignee    string  `json:"assignee" enum:"manager,direct-report"`
	AssigneeID  string  `json:"assigneeId,omitempty"`
	Completed   bool    `json:"completed"`
	CreatedAt   string  `json:"createdAt" format:"date-time"`
	CompletedAt *string `json:"completedAt,omitempty" format:"date-time"`
}

// ActionItemUpdate carries a partial action-item update.
type ActionItemUpdate struct {
	Description *string `json:"description,omitempty"`
	Assignee    *string `json:"assignee,omitempty" enum:"manager,direct-report"`
	Completed   *bool   `json:"completed,omitempty"`
}

type RoadmapItem struct {
	ID          string  `json:"id"`
	Type        string  `json:"type" enum:"theme,epic,story"`
	ParentID    *string `json:"parentId,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"planning,in-progress,done"`
	Priority    string  `json:"priority,omitempty" enum:"low,medium,high"`
	AssigneeID  string  `json:"assigneeId,omitempty"`
	StartDate   string  `json:"startDate,omitempty"`
	EndDate     string  `json:"endDate,omitempty"`
	Progress    int     `json:"progress"`
	CreatedAt   string  `json:"createdAt" format:"date-time"`
}
