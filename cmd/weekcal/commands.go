package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"weekcal/internal/digest"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
	"weekcal/internal/pipeline"
	"weekcal/internal/web"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with scheduled feed refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if listen != "" {
				a.cfg.Listen = listen
			}

			refresh := func() {
				started := time.Now()
				snap, err := a.pipe.Refresh(ctx)
				if err != nil {
					appLog.Error("scheduled refresh failed", err)
					return
				}
				appLog.Info("scheduled refresh complete",
					"groups", len(snap.Groups),
					"reference", len(snap.Reference),
					"elapsed", time.Since(started).String(),
				)
			}

			c := cron.New(cron.WithLocation(a.cfg.Location()))
			if _, err := c.AddFunc(a.cfg.RefreshCron, refresh); err != nil {
				return fmt.Errorf("invalid refresh schedule %q: %w", a.cfg.RefreshCron, err)
			}
			c.Start()
			defer func() {
				<-c.Stop().Done()
			}()

			// Warm the snapshot so the first request does not pay for it.
			go refresh()

			srv := web.NewServer(a.cfg, a.pipe, a.organizer, a.analyzer)
			err = srv.Run(ctx)
			appLog.Info("weekcal exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var (
		group  string
		enrich bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print merged, window-filtered events as JSON",
		Long: `Build the event set for one group (or all groups) and print it.

Examples:
  weekcal events --group A
  weekcal events --group B --enrich`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.pipe.Build(ctx)
			if err != nil {
				return err
			}

			groups := a.pipe.Groups()
			if group != "" {
				groups = []model.Group{model.Group(group)}
			}
			out := make(map[model.Group]any, len(groups))
			for _, g := range groups {
				events, ok := snap.Groups[g]
				if !ok {
					return fmt.Errorf("unknown group %q", g)
				}
				if enrich {
					out[g] = a.pipe.Enrich(events, snap.Reference)
				} else {
					out[g] = events
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "Group to print (default all)")
	cmd.Flags().BoolVar(&enrich, "enrich", false, "Attach canonical reference matches")
	return cmd
}

func newOrganizeCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Restructure a newsletter JSON document with the model chain",
		Long: `Read a digest document and print the organized sections.

The input has the shape
  {"id": "...", "title": "...", "sections": [{"title": "...", "items": [{"title": "...", "content": "<p>html</p>"}]}]}

Examples:
  weekcal organize --file newsletter.json
  cat newsletter.json | weekcal organize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, err := readDigestSource(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := a.organizer.Organize(ctx, src)
			if out.Fallback {
				appLog.Warn("organizer returned fallback", "reason", out.FallbackReason)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Digest JSON file (default stdin)")
	return cmd
}

func newWeeklyCmd() *cobra.Command {
	var (
		file string
		at   string
	)

	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Print the weekly analysis for every group",
		Long: `Build all groups, optionally organize a newsletter, and print the
weekly classification and summaries.

Examples:
  weekcal weekly
  weekcal weekly --digest newsletter.json --at 2025-11-03`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			now, err := pinClock(a.pipe, at, a.cfg.Location())
			if err != nil {
				return err
			}

			var dig *model.OrganizedDigest
			if file != "" {
				src, err := readDigestSource(file, nil)
				if err != nil {
					return err
				}
				dig = a.organizer.Organize(ctx, src)
			}

			snap, err := a.pipe.Build(ctx)
			if err != nil {
				return err
			}
			res := a.analyzer.Analyze(ctx, digest.Input{Groups: snap.Groups, Digest: dig, Now: now})
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&file, "digest", "d", "", "Newsletter JSON file to include")
	cmd.Flags().StringVar(&at, "at", "", "Analyze the week containing this date (YYYY-MM-DD); feeds are windowed around it too")
	return cmd
}

// pinClock anchors both the analysis week and the feed window to the day
// named by at. An empty at leaves the pipeline on the real clock and returns
// the zero time.
func pinClock(p *pipeline.Pipeline, at string, loc *time.Location) (time.Time, error) {
	if at == "" {
		return time.Time{}, nil
	}
	now, err := time.ParseInLocation(time.DateOnly, at, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at: %w", err)
	}
	p.SetClock(func() time.Time { return now })
	return now, nil
}

func readDigestSource(path string, stdin io.Reader) (model.DigestSource, error) {
	var r io.Reader = stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return model.DigestSource{}, err
		}
		defer f.Close()
		r = f
	}
	if r == nil {
		return model.DigestSource{}, fmt.Errorf("no digest input")
	}

	var src model.DigestSource
	if err := json.NewDecoder(r).Decode(&src); err != nil {
		return model.DigestSource{}, fmt.Errorf("decode digest: %w", err)
	}
	if len(src.Sections) == 0 {
		return model.DigestSource{}, fmt.Errorf("digest has no sections")
	}
	return src, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
