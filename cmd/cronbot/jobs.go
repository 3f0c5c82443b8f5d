package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cronbot/internal/app"
	"cronbot/internal/config"
	"cronbot/internal/cron"
	logx "cronbot/pkg/logx"
)

// offline opens the job store without starting the scheduler loop. Edits made
// while a server runs against the same store are not seen by that server.
type offline struct {
	cfg  *config.Config
	log  logx.Logger
	cron *cron.Service
	done func()
}

func openOffline(opts *rootOpts, withExecutor bool) (*offline, error) {
	cfg, err := loadConfig(opts.cfgPath)
	if err != nil {
		return nil, err
	}
	log := logx.NewConsole(opts.logLevel)
	var exec cron.Executor
	if withExecutor {
		if exec, err = app.BuildExecutor(cfg, log); err != nil {
			return nil, err
		}
	}
	svc, st, err := app.OpenCron(cfg, exec, nil, log)
	if err != nil {
		return nil, err
	}
	return &offline{cfg: cfg, log: log, cron: svc, done: func() { _ = st.Close() }}, nil
}

func newJobsCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and edit scheduled jobs",
		Long: `Inspect and edit scheduled jobs directly in the job store.

These commands do not talk to a running "cronbot serve". A server loads the
store once at startup, so stop it before editing jobs offline.`,
	}
	cmd.AddCommand(
		newJobsListCmd(opts),
		newJobsAddCmd(opts),
		newJobsRemoveCmd(opts),
		newJobsEnableCmd(opts, true),
		newJobsEnableCmd(opts, false),
		newJobsRunCmd(opts),
	)
	return cmd
}

func newJobsListCmd(opts *rootOpts) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs ordered by next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := openOffline(opts, false)
			if err != nil {
				return err
			}
			defer o.done()
			writeJobs(cmd.OutOrStdout(), o.cron.List(cmd.Context(), all))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include disabled jobs")
	return cmd
}

type addFlags struct {
	name           string
	schedule       string
	tz             string
	kind           string
	message        string
	deliver        bool
	channel        string
	to             string
	deleteAfterRun bool
}

func newJobsAddCmd(opts *rootOpts) *cobra.Command {
	f := &addFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a job",
		Example: `  cronbot jobs add --name backup --schedule "0 3 * * *" --tz Europe/Berlin --message "run backup"
  cronbot jobs add --name ping --schedule 15m --deliver --channel telegram --to -1001234:42 --message pong
  cronbot jobs add --name once --schedule at:+2h --delete-after-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := cron.ParseSchedule(f.schedule, f.tz, time.Now())
			if err != nil {
				return err
			}
			o, err := openOffline(opts, false)
			if err != nil {
				return err
			}
			defer o.done()
			job, err := o.cron.Add(cmd.Context(), cron.AddRequest{
				Name:     f.name,
				Schedule: sched,
				Payload: cron.Payload{
					Kind:    f.kind,
					Message: f.message,
					Deliver: f.deliver,
					Channel: f.channel,
					To:      f.to,
				},
				DeleteAfterRun: f.deleteAfterRun,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s), next run %s\n", job.ID, job.Schedule, formatNext(job))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.name, "name", "n", "", "job name")
	fl.StringVarP(&f.schedule, "schedule", "s", "", `cron expression, interval ("15m", "02:30") or "at:<RFC3339|+duration>"`)
	fl.StringVar(&f.tz, "tz", "", "IANA time zone for cron schedules (default UTC)")
	fl.StringVar(&f.kind, "kind", cron.PayloadAgentTurn, "payload kind (agent_turn or system_event)")
	fl.StringVarP(&f.message, "message", "m", "", "payload message")
	fl.BoolVar(&f.deliver, "deliver", false, "deliver the message through --channel")
	fl.StringVar(&f.channel, "channel", "", "delivery channel, e.g. telegram")
	fl.StringVar(&f.to, "to", "", `delivery target, e.g. "<chat_id>" or "<chat_id>:<thread_id>"`)
	fl.BoolVar(&f.deleteAfterRun, "delete-after-run", false, "remove a one-shot job once it has run")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

func newJobsRemoveCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOffline(opts, false)
			if err != nil {
				return err
			}
			defer o.done()
			if !o.cron.Remove(cmd.Context(), args[0]) {
				return fmt.Errorf("job %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newJobsEnableCmd(opts *rootOpts, enabled bool) *cobra.Command {
	use, verb := "enable", "enabled"
	if !enabled {
		use, verb = "disable", "disabled"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOffline(opts, false)
			if err != nil {
				return err
			}
			defer o.done()
			job, ok := o.cron.Enable(cmd.Context(), args[0], enabled)
			if !ok {
				return fmt.Errorf("job %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s, next run %s\n", verb, job.ID, formatNext(job))
			return nil
		},
	}
}

func newJobsRunCmd(opts *rootOpts) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a job now through the configured executors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOffline(opts, true)
			if err != nil {
				return err
			}
			defer o.done()
			ctx := cmd.Context()
			if !o.cron.Run(ctx, args[0], force) {
				if _, ok := o.cron.Get(ctx, args[0]); ok && !force {
					return fmt.Errorf("job %s is disabled (use --force)", args[0])
				}
				return fmt.Errorf("job %s not found", args[0])
			}
			job, ok := o.cron.Get(ctx, args[0])
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "ran %s (removed after run)\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ran %s: %s", job.ID, job.State.LastStatus)
			if job.State.LastError != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", job.State.LastError)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "run even if the job is disabled")
	return cmd
}

func newStatusCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job count and next wake time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := openOffline(opts, false)
			if err != nil {
				return err
			}
			defer o.done()
			st := o.cron.Status()
			next := "-"
			if st.NextWakeAtMs != nil {
				next = formatMs(*st.NextWakeAtMs)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "jobs:      %d\n", st.JobCount)
			fmt.Fprintf(w, "next wake: %s\n", next)
			return nil
		},
	}
}

func newHistoryCmd(opts *rootOpts) *cobra.Command {
	var (
		jobID string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := openOffline(opts, false)
			if err != nil {
				return err
			}
			defer o.done()
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			recs, err := o.cron.Runs(ctx, jobID, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tJOB\tNAME\tSTATUS\tDURATION\tERROR")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					formatMs(r.StartedMs), r.JobID, r.JobName, r.Status,
					(time.Duration(r.DurationMs) * time.Millisecond).String(), r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "only runs of this job id")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "max rows (0 = all retained)")
	return cmd
}

func writeJobs(w io.Writer, jobs []cron.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCHEDULE\tENABLED\tNEXT RUN\tLAST")
	for _, j := range jobs {
		last := string(j.State.LastStatus)
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", j.ID, j.Name, j.Schedule, j.Enabled, formatNext(j), last)
	}
	_ = tw.Flush()
}

func formatNext(j cron.Job) string {
	if j.State.NextRunAtMs == nil {
		return "-"
	}
	return formatMs(*j.State.NextRunAtMs)
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05 MST")
}
