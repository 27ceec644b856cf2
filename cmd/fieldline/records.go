package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fieldline/internal/app"
	"fieldline/internal/cache"
	"fieldline/internal/domain"
	"fieldline/internal/mutation"
)

// settle waits for a submitted change and prints the stored result.
func settle[T any](ctx context.Context, h *mutation.Handle[T], err error, show func(T) error) error {
	if err != nil {
		return err
	}
	v, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	return show(v)
}

func incidentListCmd() *cobra.Command {
	var status, priority string
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List incidents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RefreshIncidents(ctx); err != nil {
					return err
				}
				me := a.Session.UserID()
				var out []domain.Incident
				for _, inc := range a.Store.Incidents.Items() {
					if status != "" && string(inc.Status) != status {
						continue
					}
					if priority != "" && string(inc.Priority) != priority {
						continue
					}
					if mine && inc.AssignedTo != me {
						continue
					}
					out = append(out, inc)
				}
				return printIncidents(out)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (open, in_progress, completed)")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority (low, medium, high)")
	cmd.Flags().BoolVar(&mine, "mine", false, "only incidents assigned to me")
	return cmd
}

func incidentCreateCmd() *cobra.Command {
	var in domain.IncidentInput
	var priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Report a new incident",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Priority = domain.Priority(priority)
			if priority != "" && !in.Priority.Valid() {
				return fmt.Errorf("invalid priority %q", priority)
			}
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.CreateIncident(ctx, in)
				return settle(ctx, h, err, printIncident)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Location, "location", "", "location")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high)")
	return cmd
}

func incidentAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id>",
		Short: "Take over an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.AssignIncident(ctx, args[0])
				return settle(ctx, h, err, printIncident)
			})
		},
	}
}

func incidentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move an incident to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.SetIncidentStatus(ctx, args[0], domain.IncidentStatus(args[1]))
				return settle(ctx, h, err, printIncident)
			})
		},
	}
}

func incidentCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark an incident as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.CompleteIncident(ctx, args[0])
				return settle(ctx, h, err, printIncident)
			})
		},
	}
}

func incidentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.DeleteIncident(ctx, args[0])
				return settle(ctx, h, err, func(struct{}) error {
					fmt.Println("Einsatz gelöscht:", args[0])
					return nil
				})
			})
		},
	}
}

func reportListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RefreshReports(ctx); err != nil {
					return err
				}
				var out []domain.Report
				for _, r := range a.Store.Reports.Items() {
					if status == "" || string(r.Status) == status {
						out = append(out, r)
					}
				}
				return printReports(out)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func reportCreateCmd() *cobra.Command {
	var in domain.ReportInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.CreateReport(ctx, in)
				return settle(ctx, h, err, printReport)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Content, "content", "", "report text")
	cmd.Flags().StringSliceVar(&in.Images, "image", nil, "image URL (repeatable)")
	return cmd
}

func reportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a report forward (draft, in_progress, completed, archived)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.SetReportStatus(ctx, args[0], domain.ReportStatus(args[1]))
				return settle(ctx, h, err, printReport)
			})
		},
	}
}

func personListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missing and wanted persons",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RefreshPersons(ctx); err != nil {
					return err
				}
				var out []domain.Person
				for _, p := range a.Store.Persons.Items() {
					if status == "" || string(p.Status) == status {
						out = append(out, p)
					}
				}
				return printPersons(out)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (vermisst, gesucht, erledigt)")
	return cmd
}

func personCreateCmd() *cobra.Command {
	var in domain.PersonInput
	var status, priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a person case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				s := domain.PersonStatus(status)
				if !s.Valid() || s == domain.PersonResolved {
					return fmt.Errorf("invalid person status %q", status)
				}
				in.Status = &s
			}
			in.Priority = domain.Priority(priority)
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.CreatePerson(ctx, in)
				return settle(ctx, h, err, printPerson)
			})
		},
	}
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&in.CaseNumber, "case", "", "case number")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.LastSeenLocation, "last-seen", "", "last seen location")
	cmd.Flags().StringVar(&status, "status", "", "vermisst or gesucht")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high)")
	return cmd
}

func personResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Close a person case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.ResolvePerson(ctx, args[0])
				return settle(ctx, h, err, printPerson)
			})
		},
	}
}

func vacationMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List my vacation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RefreshVacations(ctx); err != nil {
					return err
				}
				return printVacations(a.Store.MyVacations.Items())
			})
		},
	}
}

func vacationPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List undecided vacation requests (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RefreshAdminVacations(ctx); err != nil {
					return err
				}
				return printVacations(a.Store.PendingVacations())
			})
		},
	}
}

func vacationApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a vacation request (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.ApproveVacation(ctx, args[0])
				return settle(ctx, h, err, printVacation)
			})
		},
	}
}

func vacationRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a vacation request (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.RejectVacation(ctx, args[0], reason)
				return settle(ctx, h, err, printVacation)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the requester")
	return cmd
}

func chatShowCmd() *cobra.Command {
	var peer, channel string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a private conversation or a channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key, err := openConversation(ctx, a, peer, channel)
				if err != nil {
					return err
				}
				return printMessages(a.Store.Conversation(key).Items())
			})
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "user id, email or username")
	cmd.Flags().StringVar(&channel, "channel", "", "channel name (default from config)")
	return cmd
}

func chatSendCmd() *cobra.Command {
	var peer, channel string
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withSession(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var h *mutation.Handle[domain.ChatMessage]
				var err error
				if peer != "" {
					id, rerr := resolvePeer(ctx, a, peer)
					if rerr != nil {
						return rerr
					}
					h, err = a.Engine.SendPrivateMessage(ctx, id, text)
				} else {
					if channel == "" {
						channel = a.Config.Chat.DefaultChannel
					}
					h, err = a.Engine.SendChannelMessage(ctx, channel, text)
				}
				return settle(ctx, h, err, func(m domain.ChatMessage) error {
					return printMessages([]domain.ChatMessage{m})
				})
			})
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "user id, email or username")
	cmd.Flags().StringVar(&channel, "channel", "", "channel name (default from config)")
	return cmd
}

// openConversation refreshes the requested conversation and returns its cache
// key. Without --peer the channel (or the default channel) is shown.
func openConversation(ctx context.Context, a *app.App, peer, channel string) (string, error) {
	if peer != "" {
		id, err := resolvePeer(ctx, a, peer)
		if err != nil {
			return "", err
		}
		return cache.PrivateKey(id), a.Engine.RefreshPrivateChat(ctx, id)
	}
	if channel == "" {
		channel = a.Config.Chat.DefaultChannel
	}
	return cache.ChannelKey(channel), a.Engine.RefreshChannel(ctx, channel)
}

// resolvePeer accepts a user id, email or username and returns the id.
func resolvePeer(ctx context.Context, a *app.App, peer string) (string, error) {
	if err := a.Engine.RefreshRoster(ctx); err != nil {
		return "", err
	}
	for _, u := range a.Store.Users.Items() {
		if u.ID == peer || strings.EqualFold(u.Email, peer) || strings.EqualFold(u.Username, peer) {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("unknown user %q", peer)
}
