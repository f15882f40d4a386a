// Package analytics derives reporting metrics from stored meetings, users
// and action items. All functions are pure over their inputs; callers fetch
// the data and inject the reference time.
package analytics

import (
	"math"
	"time"

	"oneloop/internal/domain"
)

// OverdueAfter is how long an open action item may sit before it counts as
// overdue.
const OverdueAfter = 7 * 24 * time.Hour

type DashboardMetrics struct {
	TotalMeetings     int     `json:"totalMeetings"`
	MeetingsThisWeek  int     `json:"meetingsThisWeek"`
	CompletedMeetings int     `json:"completedMeetings"`
	CompletionRate    float64 `json:"completionRate"`
	TeamSize          int     `json:"teamSize"`
	ActiveTeamMembers int     `json:"activeTeamMembers"`
}

// Dashboard computes the headline numbers. The week window is the seven days
// up to and including now.
func Dashboard(users []domain.User, meetings []domain.Meeting, now time.Time) DashboardMetrics {
	m := DashboardMetrics{TotalMeetings: len(meetings), TeamSize: len(users)}
	weekStart := now.Add(-7 * 24 * time.Hour)
	for _, mt := range meetings {
		if mt.Status == domain.MeetingCompleted {
			m.CompletedMeetings++
		}
		if t, err := time.Parse(time.RFC3339, mt.Date); err == nil {
			if t.After(weekStart) && !t.After(now.Add(7*24*time.Hour)) {
				m.MeetingsThisWeek++
			}
		}
	}
	for _, u := range users {
		if u.Status == "active" {
			m.ActiveTeamMembers++
		}
	}
	if m.TotalMeetings > 0 {
		m.CompletionRate = round1(float64(m.CompletedMeetings) / float64(m.TotalMeetings) * 100)
	}
	return m
}

type AssigneeBreakdown struct {
	Manager      int `json:"manager"`
	DirectReport int `json:"directReport"`
}

type ActionItemAnalysis struct {
	Total      int               `json:"total"`
	Completed  int               `json:"completed"`
	Overdue    int               `json:"overdue"`
	ByAssignee AssigneeBreakdown `json:"byAssignee"`
}

func ActionItems(items []domain.ActionItem, now time.Time) ActionItemAnalysis {
	a := ActionItemAnalysis{Total: len(items)}
	cutoff := now.Add(-OverdueAfter)
	for _, it := range items {
		if it.Completed {
			a.Completed++
		} else if t, err := time.Parse(time.RFC3339, it.CreatedAt); err == nil && t.Before(cutoff) {
			a.Overdue++
		}
		switch it.Assignee {
		case domain.AssigneeManager:
			a.ByAssignee.Manager++
		case domain.AssigneeDirectReport:
			a.ByAssignee.DirectReport++
		}
	}
	return a
}

// EngagementScore is the share of standard questions completed across all
// meetings, as a percentage. Meetings without standard questions are
// skipped.
func EngagementScore(meetings []domain.Meeting) float64 {
	var total, completed int
	for _, m := range meetings {
		total += len(m.StandardQuestions)
		for _, q := range m.StandardQuestions {
			if q.Completed {
				completed++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return round1(float64(completed) / float64(total) * 100)
}

// AverageDurationMinutes averages the recorded durations of completed
// meetings, rounded to whole minutes.
func AverageDurationMinutes(meetings []domain.Meeting) int {
	var sum, n int
	for _, m := range meetings {
		if m.Status == domain.MeetingCompleted && m.Duration > 0 {
			sum += m.Duration
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n) / 60))
}

// MeetingFrequency counts meetings per team member.
func MeetingFrequency(meetings []domain.Meeting) map[string]int {
	freq := map[string]int{}
	for _, m := range meetings {
		freq[m.TeamMemberID]++
	}
	return freq
}

type Report struct {
	Dashboard        DashboardMetrics   `json:"dashboard"`
	ActionItems      ActionItemAnalysis `json:"actionItems"`
	EngagementScore  float64            `json:"engagementScore"`
	AverageDuration  int                `json:"averageDurationMinutes"`
	MeetingFrequency map[string]int     `json:"meetingFrequency"`
}

// Build assembles the full report from one data set.
func Build(users []domain.User, meetings []domain.Meeting, items []domain.ActionItem, now time.Time) Report {
	return Report{
		Dashboard:        Dashboard(users, meetings, now),
		ActionItems:      ActionItems(items, now),
		EngagementScore:  EngagementScore(meetings),
		AverageDuration:  AverageDurationMinutes(meetings),
		MeetingFrequency: MeetingFrequency(meetings),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
