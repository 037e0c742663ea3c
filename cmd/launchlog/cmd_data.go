package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/launchlog/launchlog-go/internal/client"
	"github.com/launchlog/launchlog-go/internal/model"
)

// printOutcome reports where a mutation ended up and passes err through.
// A mutation queued because the token was refused is reported before the
// error.
func printOutcome(w io.Writer, what string, out client.Outcome, err error) error {
	if err != nil && !out.Queued {
		return err
	}
	switch {
	case errors.Is(err, client.ErrAuthRequired):
		fmt.Fprintf(w, "%s queued (sign-in required, run 'launchlog login' then 'launchlog sync')\n", what)
	case out.Queued:
		fmt.Fprintf(w, "%s queued (API unreachable, run 'launchlog sync' later)\n", what)
	case out.Fallback:
		fmt.Fprintf(w, "%s saved (server is in fallback mode)\n", what)
	default:
		fmt.Fprintf(w, "%s saved\n", what)
	}
	return err
}

// load refreshes from the API, telling the user when the cache was used.
func (a *app) load(ctx context.Context, w io.Writer) (model.UserData, error) {
	d, fromCache, err := a.svc.Load(ctx)
	if err != nil {
		return model.UserData{}, err
	}
	if fromCache {
		fmt.Fprintln(w, "(showing local data)")
	}
	return d, nil
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show API health and queued changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			w := cmd.OutOrStdout()

			h, err := a.api.Health(ctx)
			if err != nil {
				fmt.Fprintf(w, "API:     unreachable (%v)\n", err)
			} else {
				fmt.Fprintf(w, "API:     %s, storage %s\n", h.Message, h.Storage)
			}

			user := model.DefaultUserID
			if u, ok := a.svc.CurrentUser(); ok {
				user = u.ID
			}
			ops, err := a.cache.Pending(ctx, user)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Queued:  %d change(s)\n", len(ops))
			return nil
		},
	}
}

func (a *app) sessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Record focus sessions",
	}

	var date string
	logCmd := &cobra.Command{
		Use:   "log <subject> <minutes>",
		Short: "Record a completed focus session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[1])
			if err != nil || minutes < 0 {
				return fmt.Errorf("minutes must be a non-negative whole number, got %q", args[1])
			}
			s := model.TimerSession{Subject: args[0], Duration: minutes}
			if date != "" {
				if s.Date, err = time.Parse(time.RFC3339, date); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}

			ctx, cancel := a.ctx(cmd)
			defer cancel()

			_, out, err := a.svc.SaveTimerSession(ctx, s)
			return printOutcome(cmd.OutOrStdout(), "Session", out, err)
		},
	}
	logCmd.Flags().StringVar(&date, "date", "", "When the session ended, RFC 3339 (default: now)")

	sessionCmd.AddCommand(logCmd)
	return sessionCmd
}

func (a *app) jobCmd() *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Track job applications",
	}

	var job model.Job
	var status string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a job application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			job.Status = model.JobStatus(status)
			if job.Status != "" && !job.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}

			ctx, cancel := a.ctx(cmd)
			defer cancel()

			saved, out, err := a.svc.SaveJob(ctx, job)
			return printOutcome(cmd.OutOrStdout(), "Job "+saved.ID, out, err)
		},
	}
	addCmd.Flags().StringVar(&job.Title, "title", "", "Position title (required)")
	addCmd.Flags().StringVar(&job.Company, "company", "", "Company (required)")
	addCmd.Flags().StringVar(&job.DateApplied, "date-applied", "", "Date applied, free form")
	addCmd.Flags().StringVar(&status, "status", "", "Applied, Interview, Rejected or Placed (default Applied)")
	addCmd.Flags().StringVar(&job.Notes, "notes", "", "Notes")
	addCmd.MarkFlagRequired("title")
	addCmd.MarkFlagRequired("company")

	statusCmd := &cobra.Command{
		Use:   "status <job-id> <status>",
		Short: "Move a job application to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			next := model.JobStatus(args[1])
			if !next.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}

			ctx, cancel := a.ctx(cmd)
			defer cancel()

			d, err := a.load(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			for _, j := range d.Jobs {
				if j.ID != args[0] {
					continue
				}
				j.Status = next
				out, err := a.svc.UpdateJob(ctx, j.ID, j)
				return printOutcome(cmd.OutOrStdout(), "Job "+j.ID, out, err)
			}
			return fmt.Errorf("no job with id %s", args[0])
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <job-id>",
		Short: "Remove a job application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			out, err := a.svc.DeleteJob(ctx, args[0])
			return printOutcome(cmd.OutOrStdout(), "Removal of job "+args[0], out, err)
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List job applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			d, err := a.load(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tCOMPANY\tSTATUS\tAPPLIED")
			for _, j := range d.Jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Title, j.Company, j.Status, j.DateApplied)
			}
			return tw.Flush()
		},
	}

	jobCmd.AddCommand(addCmd, statusCmd, rmCmd, lsCmd)
	return jobCmd
}

// column returns the task column named name.
func column(b *model.TaskBoard, name string) (*[]model.Task, error) {
	switch strings.ToLower(name) {
	case "todo":
		return &b.Todo, nil
	case "doing", "inprogress":
		return &b.Doing, nil
	case "done", "completed":
		return &b.Done, nil
	}
	return nil, fmt.Errorf("unknown column %q (todo, doing, done)", name)
}

func (a *app) taskCmd() *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task board",
	}

	var task model.Task
	var col string
	addCmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			d, err := a.load(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			dst, err := column(&d.Tasks, col)
			if err != nil {
				return err
			}

			t := task
			t.ID = uuid.NewString()
			t.Title = args[0]
			t.CreatedAt = time.Now().UTC()
			*dst = append(*dst, t)

			out, err := a.svc.UpdateTasks(ctx, d.Tasks)
			return printOutcome(cmd.OutOrStdout(), "Task "+t.ID, out, err)
		},
	}
	addCmd.Flags().StringVar(&col, "column", "todo", "Column: todo, doing or done")
	addCmd.Flags().StringVar(&task.Description, "description", "", "Description")
	addCmd.Flags().StringVar(&task.DueDate, "due", "", "Due date, free form")

	moveCmd := &cobra.Command{
		Use:   "move <task-id> <column>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			d, err := a.load(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			dst, err := column(&d.Tasks, args[1])
			if err != nil {
				return err
			}

			var (
				moved model.Task
				found bool
			)
			for _, c := range []*[]model.Task{&d.Tasks.Todo, &d.Tasks.Doing, &d.Tasks.Done} {
				kept := (*c)[:0:0]
				for _, t := range *c {
					if t.ID == args[0] {
						moved, found = t, true
						continue
					}
					kept = append(kept, t)
				}
				*c = kept
			}
			if !found {
				return fmt.Errorf("no task with id %s", args[0])
			}
			*dst = append(*dst, moved)

			out, err := a.svc.UpdateTasks(ctx, d.Tasks)
			return printOutcome(cmd.OutOrStdout(), "Task "+moved.ID, out, err)
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "Show the task board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			d, err := a.load(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tID\tTITLE\tDUE")
			for _, c := range []struct {
				name  string
				tasks []model.Task
			}{{"todo", d.Tasks.Todo}, {"doing", d.Tasks.Doing}, {"done", d.Tasks.Done}} {
				for _, t := range c.tasks {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.name, t.ID, t.Title, t.DueDate)
				}
			}
			return tw.Flush()
		},
	}

	taskCmd.AddCommand(addCmd, moveCmd, lsCmd)
	return taskCmd
}

func (a *app) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			w := cmd.OutOrStdout()
			d, err := a.load(ctx, w)
			if err != nil {
				return err
			}
			dash := d.DashboardData
			fmt.Fprintf(w, "Total hours:          %.1f\n", dash.TotalHours)
			fmt.Fprintf(w, "Sessions this week:   %d\n", dash.SessionsThisWeek)
			fmt.Fprintf(w, "Completed tasks:      %d\n", dash.CompletedTasks)
			fmt.Fprintf(w, "Active applications:  %d\n", dash.ActiveApplications)
			return nil
		},
	}
}

func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued changes to the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			remaining, err := a.svc.Flush(ctx)
			if remaining > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d change(s) still queued\n", remaining)
				if errors.Is(err, client.ErrAuthRequired) {
					fmt.Fprintln(cmd.OutOrStdout(), "Sign in again with 'launchlog login', then run 'launchlog sync'")
				}
				if err != nil {
					return fmt.Errorf("sync: %w", err)
				}
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All changes synced")
			return nil
		},
	}
}

func (a *app) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all sessions, tasks and jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes everything; pass --yes to confirm")
			}

			ctx, cancel := a.ctx(cmd)
			defer cancel()

			out, err := a.svc.Reset(ctx)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Local data cleared")
				return err
			}
			return printOutcome(cmd.OutOrStdout(), "Reset", out, nil)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
