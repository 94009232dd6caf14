package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/floorcast/internal/catalog"
	"github.com/kiranshivaraju/floorcast/internal/orchestrator"
	"github.com/kiranshivaraju/floorcast/internal/outputs"
	"github.com/kiranshivaraju/floorcast/internal/prompt"
	"github.com/kiranshivaraju/floorcast/internal/queue"
	"github.com/kiranshivaraju/floorcast/internal/resolver"
	"github.com/kiranshivaraju/floorcast/internal/store"
	"github.com/kiranshivaraju/floorcast/internal/uploads"
	"github.com/kiranshivaraju/floorcast/pkg/models"
	"github.com/spf13/cobra"
)

// runQueueSize leaves room for jobs that Recover re-enqueues.
const runQueueSize = 64

type runOptions struct {
	catalogPath   string
	dbPath        string
	floorID       string
	samples       []string
	rooms         []string
	hints         []string
	workDir       string
	promptVersion string
	provider      string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a whole job locally against the catalog",
		Long: "Creates and executes a job in-process: the same validation, item loop and partial " +
			"results as the server, with jobs kept in a local SQLite file. Pass catalog samples " +
			"with --sample or room photos with --room, not both.",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := newGenerator(opts.provider)
			if err != nil {
				return err
			}
			job, err := runJob(cmd.Context(), gen, opts)
			if job != nil {
				printJob(cmd.OutOrStdout(), job)
			}
			if err != nil {
				return err
			}
			if job.Status != models.JobStatusDone {
				return fmt.Errorf("job %s finished with status %s", job.ID, job.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.catalogPath, "catalog", envOr("CATALOG_PATH", "catalog/catalog.yaml"), "catalog file")
	cmd.Flags().StringVar(&opts.dbPath, "db", "floorcast.db", "SQLite job database")
	cmd.Flags().StringVar(&opts.floorID, "floor", "", "catalog floor id")
	cmd.Flags().StringArrayVar(&opts.samples, "sample", nil, "catalog sample id, repeatable")
	cmd.Flags().StringArrayVar(&opts.rooms, "room", nil, "room photo file, repeatable")
	cmd.Flags().StringArrayVar(&opts.hints, "hint", nil, "per-room hint, repeatable, in input order")
	cmd.Flags().StringVar(&opts.workDir, "dir", ".", "directory for uploads/ and outputs/")
	cmd.Flags().StringVar(&opts.promptVersion, "prompt-version", envOr("PROMPT_VERSION", "floor-v1"), "prompt version label")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "generator provider, overrides GENERATOR_PROVIDER")
	_ = cmd.MarkFlagRequired("floor")
	return cmd
}

// runJob executes one job to completion and returns its final record.
func runJob(ctx context.Context, gen models.ImageGenerator, opts runOptions) (*models.Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if (len(opts.samples) == 0) == (len(opts.rooms) == 0) {
		return nil, errors.New("pass either --sample or --room")
	}

	cat, err := catalog.Load(opts.catalogPath)
	if err != nil {
		return nil, err
	}
	up, err := uploads.NewStore(filepath.Join(opts.workDir, "uploads"), 1<<30)
	if err != nil {
		return nil, err
	}
	out, err := outputs.NewStore(filepath.Join(opts.workDir, "outputs"))
	if err != nil {
		return nil, err
	}
	db, err := store.NewSQLiteStore(opts.dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	source, refs := models.SourceSample, opts.samples
	if len(opts.rooms) > 0 {
		source = models.SourceUpload
		refs, err = importRooms(up, opts.rooms)
		if err != nil {
			return nil, err
		}
	}

	q := queue.New(runQueueSize)
	svc := orchestrator.New(orchestrator.Dependencies{
		Store:     db,
		Resolver:  resolver.New(cat, up),
		Catalog:   cat,
		Composer:  prompt.NewComposer("", opts.promptVersion),
		Generator: gen,
		Outputs:   out,
		Queue:     q,
	})
	workerCtx, stop := context.WithCancel(context.Background())
	q.Start(workerCtx, 1, svc.Execute)
	// Runs before db.Close: a job being executed always finishes its writes.
	defer func() {
		stop()
		_ = q.Wait(context.Background())
	}()

	// A previous run killed mid-job left it RUNNING; close it out and pick up
	// anything still PENDING.
	if err := svc.Recover(ctx); err != nil {
		return nil, err
	}

	job, err := svc.CreateJob(ctx, orchestrator.CreateParams{
		FloorID:   opts.floorID,
		Source:    source,
		InputRefs: refs,
		Hints:     opts.hints,
	})
	if err != nil {
		return nil, err
	}

	for !job.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
		next, err := svc.GetJob(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			return nil, err
		}
		job = next
	}
	return job, nil
}

// importRooms copies local room photos into the upload store.
func importRooms(up *uploads.Store, paths []string) ([]string, error) {
	refs := make([]string, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		ref, err := up.Save(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func newShowCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "show <job_id>",
		Short: "Print a job stored by run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			db, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			job, err := db.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "floorcast.db", "SQLite job database")
	return cmd
}

func printJob(w io.Writer, job *models.Job) {
	fmt.Fprintf(w, "job %s %s (floor %s, prompt %s)\n", job.ID, job.Status, job.FloorID, job.PromptVersion)
	if job.Error != nil {
		fmt.Fprintf(w, "  error: %s\n", *job.Error)
	}
	for i, it := range job.Items {
		switch it.Status {
		case models.ItemStatusDone:
			fmt.Fprintf(w, "  %d %s DONE %s\n", i+1, it.InputID, it.OutputRef)
		case models.ItemStatusError:
			fmt.Fprintf(w, "  %d %s ERROR %s: %s\n", i+1, it.InputID, it.ErrorKind, it.Error)
		default:
			fmt.Fprintf(w, "  %d %s %s\n", i+1, it.InputID, it.Status)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
