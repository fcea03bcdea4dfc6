package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/client"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/jobs"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
	"github.com/byessilyurt/sahibinden-instagram-generator/internal/poller"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func newPushCommand(opts *rootOptions) *cobra.Command {
	var (
		contextID string
		file      string
	)
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Store scraped listing data for a context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := loadListing(file)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.PutPayload(cmd.Context(), jobs.ContextID(contextID), l); err != nil {
				return fmt.Errorf("failed to store listing: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d images for %s\n", len(l.ValidImages()), contextID)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "context id (tab or session)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "listing file (.yaml or .json)")
	_ = cmd.MarkFlagRequired("context")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type generateOptions struct {
	contextID string
	kind      string
	file      string
	wait      bool
	outDir    string
	interval  time.Duration
}

func newGenerateCommand(opts *rootOptions) *cobra.Command {
	g := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Start a generation job (image, video or flyer)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts, g)
		},
	}
	cmd.Flags().StringVar(&g.contextID, "context", "", "context id (defaults to a new cli-<uuid>)")
	cmd.Flags().StringVarP(&g.kind, "kind", "k", string(jobs.KindImage), "image, video or flyer")
	cmd.Flags().StringVarP(&g.file, "file", "f", "", "listing file; omit to use the data cached for the context")
	cmd.Flags().BoolVarP(&g.wait, "wait", "w", false, "wait for the job and download the result")
	cmd.Flags().StringVarP(&g.outDir, "out", "o", ".", "download directory used with --wait")
	cmd.Flags().DurationVar(&g.interval, "interval", poller.DefaultInterval, "status poll interval")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *rootOptions, g *generateOptions) error {
	kind, err := jobs.ParseKind(g.kind)
	if err != nil {
		return err
	}
	contextID := jobs.ContextID(strings.TrimSpace(g.contextID))
	if contextID == "" {
		contextID = jobs.ContextID("cli-" + uuid.NewString())
	}

	var payload *listing.Listing
	if g.file != "" {
		l, err := loadListing(g.file)
		if err != nil {
			return err
		}
		payload = &l
	}

	c, err := opts.client()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	started, err := c.Start(ctx, contextID, kind, payload)
	if err != nil {
		return fmt.Errorf("failed to start generation: %w", err)
	}
	fmt.Fprintf(out, "Started %s job %s (context %s)\n", kind, started.JobID, contextID)
	if !g.wait {
		return nil
	}

	var final []jobs.Record
	err = opts.poller(c, g.interval).Run(ctx, contextID, func(u poller.Update) {
		if u.Final {
			final = u.Jobs
		}
	})
	if err != nil {
		return fmt.Errorf("failed to poll job status: %w", err)
	}

	record, ok := findJob(final, started.JobID)
	if !ok {
		return fmt.Errorf("job %s expired before its result could be read", started.JobID)
	}
	if record.Status == jobs.StatusFailed {
		msg := "unknown error"
		if record.Error != nil {
			msg = record.Error.Message
		}
		return fmt.Errorf("job %s failed: %s", record.JobID, msg)
	}

	path, err := download(cmd, c, record.JobID, g.outDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s\n", path)
	return nil
}

func download(cmd *cobra.Command, c *client.Client, jobID, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".listingctl-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	name, err := c.Download(cmd.Context(), jobID, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to download result: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var (
		contextID string
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a context's jobs until none are running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return opts.poller(c, interval).Run(cmd.Context(), jobs.ContextID(contextID), func(u poller.Update) {
				printJobs(out, u)
			})
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "context id")
	cmd.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "status poll interval")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <jobId>",
		Short: "Show a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			record, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, client.ErrNotFound) {
					return fmt.Errorf("job %s not found (it may have expired)", args[0])
				}
				return err
			}
			printRecord(cmd.OutOrStdout(), *record)
			return nil
		},
	}
}

func printJobs(w io.Writer, u poller.Update) {
	state := "busy"
	if !u.Busy {
		state = "idle"
	}
	if u.Final {
		state += " (final)"
	}
	fmt.Fprintf(w, "[%s] %d job(s)\n", state, len(u.Jobs))
	for _, r := range u.Jobs {
		printRecord(w, r)
	}
}

func printRecord(w io.Writer, r jobs.Record) {
	line := fmt.Sprintf("  %s  %-6s %-9s", r.JobID, r.Kind, r.Status)
	switch {
	case r.Error != nil:
		line += "  " + r.Error.Message
	case r.Result != nil:
		line += "  " + r.Result.DownloadURL
	}
	fmt.Fprintln(w, line)
}

func findJob(records []jobs.Record, jobID string) (jobs.Record, bool) {
	for _, r := range records {
		if r.JobID == jobID {
			return r, true
		}
	}
	return jobs.Record{}, false
}
