package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"oneloop/internal/config"
	"oneloop/internal/db"
	"oneloop/internal/domain"
	"oneloop/internal/engine"
	"oneloop/internal/integrations"
	"oneloop/internal/repo"
	"oneloop/internal/server"
	"oneloop/internal/session"
	"oneloop/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "ol",
	Short: "OneLoop CLI",
	Long: `OneLoop tracks 1-on-1 meetings between a manager and their direct reports.
- Workspace: a .oneloop directory holding the database and fallback cache.
- Members: the direct reports, added directly or through invitations.
- Meetings: scheduled 1-on-1s seeded with the standard questions.
- Sessions: a live meeting with a running timer, a discussion-point tree
  (nested up to 4 levels) and an action-item list; every edit saves in the
  background and falls back to the local cache when the store is down.
- Report: dashboard metrics, action-item analysis, engagement score.
- Event log: diary of changes, view with 'ol log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ONELOOP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(meetingCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(roadmapCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(integrationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var managerID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default oneloop.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(managerID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&managerID, "manager-id", "manager", "manager identifier")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

// --- members ---

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage team members"}
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberListCmd())
	m.AddCommand(memberShowCmd())
	m.AddCommand(memberUpdateCmd())
	m.AddCommand(memberRemoveCmd())
	return m
}

func memberAddCmd() *cobra.Command {
	var email, position, access string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.AddMember(ctx, repo.UserCreate{
					Name:        args[0],
					Email:       email,
					Position:    position,
					AccessLevel: access,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&position, "position", "", "position title")
	cmd.Flags().StringVar(&access, "access", domain.AssigneeDirectReport, "access level")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List team members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Members(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Position", "Access", "Status"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Position, u.AccessLevel, u.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func memberShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <member-id>",
		Short: "Show a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Member(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func memberUpdateCmd() *cobra.Command {
	var position, access, status string
	cmd := &cobra.Command{
		Use:   "update <member-id>",
		Short: "Update a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.UpdateMember(ctx, args[0], repo.UserUpdate{
					Position:    optionalString(position),
					AccessLevel: optionalString(access),
					Status:      optionalString(status),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&position, "position", "", "position title")
	cmd.Flags().StringVar(&access, "access", "", "access level")
	cmd.Flags().StringVar(&status, "status", "", "member status")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <member-id>",
		Short: "Remove a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RemoveMember(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
}

// --- invitations ---

func inviteCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invite", Short: "Manage invitations"}
	inv.AddCommand(inviteSendCmd())
	inv.AddCommand(inviteListCmd())
	inv.AddCommand(inviteResendCmd())
	inv.AddCommand(inviteAcceptCmd())
	inv.AddCommand(inviteCancelCmd())
	return inv
}

func inviteSendCmd() *cobra.Command {
	var name, position, access, message string
	cmd := &cobra.Command{
		Use:   "send <email>",
		Short: "Invite a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.InviteMember(ctx, repo.InvitationCreate{
					Name:        name,
					Email:       args[0],
					Position:    position,
					AccessLevel: access,
					Message:     message,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "invitee name")
	cmd.Flags().StringVar(&position, "position", "", "position title")
	cmd.Flags().StringVar(&access, "access", domain.AssigneeDirectReport, "access level")
	cmd.Flags().StringVar(&message, "message", "", "personal message")
	return cmd
}

func inviteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				invs, err := e.Invitations(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(invs)
			})
		},
	}
}

func inviteResendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend <invitation-id>",
		Short: "Resend an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.ResendInvitation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
}

func inviteAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <invitation-id>",
		Short: "Accept an invitation, creating the member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.AcceptInvitation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func inviteCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <invitation-id>",
		Short: "Cancel an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.CancelInvitation(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("cancelled", args[0])
				return nil
			})
		},
	}
}

// --- meetings ---

func meetingCmd() *cobra.Command {
	m := &cobra.Command{Use: "meeting", Short: "Manage meetings"}
	m.AddCommand(meetingScheduleCmd())
	m.AddCommand(meetingListCmd())
	m.AddCommand(meetingShowCmd())
	m.AddCommand(meetingRescheduleCmd())
	return m
}

func meetingScheduleCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "schedule <member-id>",
		Short: "Schedule a 1-on-1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ScheduleMeeting(ctx, args[0], date)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "meeting date (RFC3339, default now)")
	return cmd
}

func meetingListCmd() *cobra.Command {
	var memberID string
	var upcoming bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					meetings []domain.Meeting
					err      error
				)
				switch {
				case memberID != "":
					meetings, err = e.MeetingsFor(ctx, memberID)
				case upcoming:
					meetings, err = e.UpcomingMeetings(ctx)
				default:
					meetings, err = e.Meetings(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(meetings)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Member", "Date", "Status", "Duration"})
				for _, m := range meetings {
					tw.AppendRow(table.Row{m.ID, m.TeamMemberID, m.Date, m.Status, formatDuration(m.Duration)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "filter by team member id")
	cmd.Flags().BoolVar(&upcoming, "upcoming", false, "only upcoming scheduled meetings")
	return cmd
}

func meetingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <meeting-id>",
		Short: "Show a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Meeting(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

func meetingRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <meeting-id> <date>",
		Short: "Move a scheduled meeting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.RescheduleMeeting(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
}

// --- action items ---

func actionCmd() *cobra.Command {
	a := &cobra.Command{Use: "action", Short: "Manage action items"}
	a.AddCommand(actionAddCmd())
	a.AddCommand(actionListCmd())
	a.AddCommand(actionDoneCmd())
	return a
}

func actionAddCmd() *cobra.Command {
	var assignee, assigneeID string
	cmd := &cobra.Command{
		Use:   "add <meeting-id> <description>",
		Short: "Add an action item to a meeting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateActionItem(ctx, args[0], repo.ActionItemCreate{
					Description: args[1],
					Assignee:    assignee,
					AssigneeID:  assigneeID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", domain.AssigneeDirectReport, "assignee role")
	cmd.Flags().StringVar(&assigneeID, "assignee-id", "", "assignee member id")
	return cmd
}

func actionListCmd() *cobra.Command {
	var meetingID, memberID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List action items for a meeting or member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					items []domain.ActionItem
					err   error
				)
				switch {
				case meetingID != "":
					items, err = e.ActionItemsForMeeting(ctx, meetingID)
				case memberID != "":
					items, err = e.ActionItemsForUser(ctx, memberID)
				default:
					return errors.New("either --meeting or --member is required")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Description", "Assignee", "Done"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Description, it.Assignee, it.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&meetingID, "meeting", "", "meeting id")
	cmd.Flags().StringVar(&memberID, "member", "", "member id")
	return cmd
}

func actionDoneCmd() *cobra.Command {
	var undone bool
	cmd := &cobra.Command{
		Use:   "done <action-id>",
		Short: "Mark an action item completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				completed := !undone
				a, err := e.UpdateActionItem(ctx, args[0], domain.ActionItemUpdate{Completed: &completed})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&undone, "undo", false, "mark as not completed")
	return cmd
}

// --- roadmap ---

func roadmapCmd() *cobra.Command {
	r := &cobra.Command{Use: "roadmap", Short: "Manage roadmap items"}
	r.AddCommand(roadmapAddCmd())
	r.AddCommand(roadmapListCmd())
	r.AddCommand(roadmapRemoveCmd())
	return r
}

func roadmapAddCmd() *cobra.Command {
	var itemType, parent, status, priority string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a roadmap item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, err := e.UpsertRoadmapItem(ctx, domain.RoadmapItem{
					Type:     itemType,
					ParentID: optionalString(parent),
					Title:    args[0],
					Status:   status,
					Priority: priority,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(item)
			})
		},
	}
	cmd.Flags().StringVar(&itemType, "type", "story", "theme, epic or story")
	cmd.Flags().StringVar(&parent, "parent", "", "parent item id")
	cmd.Flags().StringVar(&status, "status", "", "planning, in-progress or done")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	return cmd
}

func roadmapListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roadmap items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.RoadmapItems(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Status", "Progress"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Type, it.Title, it.Status, fmt.Sprintf("%d%%", it.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func roadmapRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Delete a roadmap item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteRoadmapItem(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
}

// --- live session ---

func sessionCmd() *cobra.Command {
	s := &cobra.Command{Use: "session", Short: "Run a live meeting session"}
	s.AddCommand(sessionRunCmd())
	return s
}

func sessionRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <meeting-id>",
		Short: "Run an interactive session on a scheduled meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				notifier := session.NotifierFunc(func(n session.Notification) {
					switch n.Kind {
					case session.NoteDegraded:
						fmt.Fprintln(os.Stderr, "save failed, working from local cache:", n.Message)
					case session.NoteRecovered:
						fmt.Fprintln(os.Stderr, "back online:", n.Message)
					}
				})
				s, err := e.StartSession(ctx, args[0], notifier)
				if err != nil {
					return err
				}
				fmt.Println("session started; commands: point, sub, toggle, remove, action, done, note, show, end, cancel")
				scanner := bufio.NewScanner(os.Stdin)
				for {
					fmt.Printf("[%s] > ", s.ElapsedDisplay())
					if !scanner.Scan() {
						return e.CancelSession(ctx, s)
					}
					line := strings.TrimSpace(scanner.Text())
					verb, rest, _ := strings.Cut(line, " ")
					switch verb {
					case "":
					case "point":
						id, err := s.AddDiscussionPoint(rest)
						reportResult(id, err)
					case "sub":
						parentID, text, _ := strings.Cut(rest, " ")
						id, err := s.AddSubPoint(parentID, text)
						reportResult(id, err)
					case "toggle":
						reportResult("", s.ToggleDiscussionPoint(rest))
					case "remove":
						reportResult("", s.RemoveDiscussionPoint(rest))
					case "action":
						id, err := s.AddActionItem(rest, domain.AssigneeDirectReport)
						reportResult(id, err)
					case "done":
						reportResult("", s.ToggleActionItem(rest))
					case "note":
						reportResult("", s.SetNotes(rest))
					case "show":
						printSessionState(s)
					case "end":
						sum, err := e.FinishSession(ctx, s)
						if err != nil {
							return err
						}
						return printJSONOrTable(sum)
					case "cancel":
						if err := e.CancelSession(ctx, s); err != nil {
							return err
						}
						fmt.Println("session cancelled; meeting stays scheduled")
						return nil
					default:
						fmt.Println("unknown command:", verb)
					}
				}
			})
		},
	}
}

func reportResult(id string, err error) {
	switch {
	case err != nil:
		fmt.Println("error:", err)
	case id != "":
		fmt.Println(id)
	}
}

func printSessionState(s *session.Session) {
	snap := s.Snapshot()
	fmt.Printf("elapsed %s  degraded=%v\n", snap.Elapsed, snap.Degraded)
	for _, fp := range s.Flatten() {
		mark := " "
		if fp.Point.Completed {
			mark = "x"
		}
		fmt.Printf("%s[%s] %s (%s)\n", strings.Repeat("  ", fp.Depth-1), mark, fp.Point.Text, fp.Point.ID)
	}
	for _, it := range snap.ActionItems {
		mark := " "
		if it.Completed {
			mark = "x"
		}
		pending := ""
		if it.Pending {
			pending = " (unsaved)"
		}
		fmt.Printf("* [%s] %s -> %s%s (%s)\n", mark, it.Description, it.Assignee, pending, it.ID)
	}
}

// --- report ---

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show the analytics report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.Report(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
}

// --- integrations ---

func integrationCmd() *cobra.Command {
	i := &cobra.Command{Use: "integration", Short: "Manage Teams/Outlook integrations"}
	i.AddCommand(integrationStatusCmd())
	i.AddCommand(integrationConnectCmd())
	i.AddCommand(integrationDisconnectCmd())
	return i
}

func integrationStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <provider>",
		Short: "Show integration status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Integrations.GetStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
}

func integrationConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <provider>",
		Short: "Connect an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Integrations.Connect(ctx, args[0])
				if errors.Is(err, integrations.ErrConnectionFailed) {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
}

func integrationDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <provider>",
		Short: "Disconnect an integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Integrations.Disconnect(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
}

// --- event log ---

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.Events.Latest(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(rows)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- seed ---

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample data into an empty workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SeedSampleData(ctx); err != nil {
					return err
				}
				fmt.Println("sample data loaded")
				return nil
			})
		},
	}
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving OneLoop API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, store.NewSQLite(conn), cfg, filepath.Join(workspace, ".oneloop"))
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
