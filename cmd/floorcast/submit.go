package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiranshivaraju/floorcast/pkg/models"
	"github.com/spf13/cobra"
)

type submitOptions struct {
	server         string
	floorID        string
	samples        []string
	rooms          []string
	hints          []string
	idempotencyKey string
	interval       time.Duration
	timeout        time.Duration
}

func newSubmitCmd() *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job to a floorcast server and wait for it",
		Long: "Uploads any --room files, creates a job through POST /api/v1/jobs and polls " +
			"GET /api/v1/jobs/{id} until the job is DONE or ERROR.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmdContext(cmd), opts.timeout)
			defer cancel()

			c := &apiClient{base: strings.TrimRight(opts.server, "/"), http: &http.Client{Timeout: 5 * time.Minute}}
			job, err := submit(ctx, c, opts)
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

	cmd.Flags().StringVar(&opts.server, "server", envOr("FLOORCAST_SERVER", "http://localhost:8080"), "server base URL")
	cmd.Flags().StringVar(&opts.floorID, "floor", "", "catalog floor id")
	cmd.Flags().StringArrayVar(&opts.samples, "sample", nil, "catalog sample id, repeatable")
	cmd.Flags().StringArrayVar(&opts.rooms, "room", nil, "room photo to upload, repeatable")
	cmd.Flags().StringArrayVar(&opts.hints, "hint", nil, "per-room hint, repeatable, in input order")
	cmd.Flags().StringVar(&opts.idempotencyKey, "idempotency-key", "", "makes retries of this submit return the same job")
	cmd.Flags().DurationVar(&opts.interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "give up waiting after this long")
	_ = cmd.MarkFlagRequired("floor")
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// submit creates the job and polls it until it reaches a terminal status.
func submit(ctx context.Context, c *apiClient, opts submitOptions) (*models.Job, error) {
	if (len(opts.samples) == 0) == (len(opts.rooms) == 0) {
		return nil, fmt.Errorf("pass either --sample or --room")
	}

	source, refs := models.SourceSample, opts.samples
	if len(opts.rooms) > 0 {
		source = models.SourceUpload
		refs = nil
		for _, p := range opts.rooms {
			ref, err := c.upload(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("uploading %s: %w", p, err)
			}
			refs = append(refs, ref)
		}
	}

	job, err := c.createJob(ctx, createJobBody{
		FloorID:   opts.floorID,
		Source:    string(source),
		InputRefs: refs,
		Hints:     opts.hints,
	}, opts.idempotencyKey)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	for !job.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("waiting for job %s: %w", job.ID, ctx.Err())
		case <-ticker.C:
		}
		next, err := c.getJob(ctx, job.ID.String())
		if err != nil {
			return job, err
		}
		job = next
	}
	return job, nil
}

type apiClient struct {
	base string
	http *http.Client
}

type createJobBody struct {
	FloorID   string   `json:"floor_id"`
	Source    string   `json:"source"`
	InputRefs []string `json:"input_refs"`
	Hints     []string `json:"hints,omitempty"`
}

// apiError is the server's error envelope.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *apiClient) createJob(ctx context.Context, body createJobBody, idempotencyKey string) (*models.Job, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/jobs", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	var job models.Job
	if err := c.do(req, http.StatusAccepted, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) getJob(ctx context.Context, id string) (*models.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/jobs/"+id, nil)
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := c.do(req, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/uploads", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out struct {
		Ref string `json:"ref"`
	}
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return "", err
	}
	return out.Ref, nil
}

// do sends req and decodes the data envelope into v, or the error envelope
// into an *apiError.
func (c *apiClient) do(req *http.Request, want int, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var env struct {
			Error apiError `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		env.Error.Status = resp.StatusCode
		return &env.Error
	}
	env := struct {
		Data any `json:"data"`
	}{Data: v}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
