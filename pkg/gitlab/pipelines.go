package gitlab

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qodev/gitlab-api-client/pkg/client"
	"github.com/qodev/gitlab-api-client/pkg/poll"
)

// Terminal pipeline statuses. Everything else ("running", "pending",
// "created", ...) keeps a wait going.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
	StatusSkipped  = "skipped"

	// StatusTimeout is produced locally when a wait deadline elapses.
	// The server never reports it.
	StatusTimeout = "timeout"
)

// IsTerminalStatus reports whether a pipeline status ends a wait.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusSuccess, StatusFailed, StatusCanceled, StatusSkipped:
		return true
	default:
		return false
	}
}

// ListPipelines returns the pipelines of a project, newest first, across
// all pages. ref narrows to one branch or tag when non-empty.
func (c *Client) ListPipelines(ctx context.Context, project, ref string) ([]Pipeline, error) {
	query := client.Params{}
	if ref != "" {
		query["ref"] = ref
	}
	return listAll[Pipeline](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/pipelines"),
		Query:  query,
	})
}

// GetPipeline fetches one pipeline.
func (c *Client) GetPipeline(ctx context.Context, project string, pipelineID int) (*Pipeline, error) {
	var p Pipeline
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/pipelines/%d", pipelineID),
	}
	if err := c.api.Do(ctx, call, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListJobs returns every job of a pipeline, across all pages.
func (c *Client) ListJobs(ctx context.Context, project string, pipelineID int) ([]Job, error) {
	return listAll[Job](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/pipelines/%d/jobs", pipelineID),
	})
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, project string, jobID int) (*Job, error) {
	var j Job
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/jobs/%d", jobID),
	}
	if err := c.api.Do(ctx, call, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJobLog returns the plain-text trace of a job.
func (c *Client) GetJobLog(ctx context.Context, project string, jobID int) (string, error) {
	var raw []byte
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/jobs/%d/trace", jobID),
	}
	if err := c.api.Do(ctx, call, &raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

// RetryJob retries a job, creating a new job run.
func (c *Client) RetryJob(ctx context.Context, project string, jobID int) (*Job, error) {
	var j Job
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/jobs/%d/retry", jobID),
	}
	if err := c.api.Do(ctx, call, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJobArtifact downloads one artifact file from a job.
func (c *Client) GetJobArtifact(ctx context.Context, project string, jobID int, artifactPath string) ([]byte, error) {
	var raw []byte
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/jobs/%d/artifacts/%s", jobID, artifactPath),
	}
	if err := c.api.Do(ctx, call, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// WaitOptions configures WaitForPipeline.
type WaitOptions struct {
	// Interval between status checks. Fixed for the whole wait.
	Interval time.Duration

	// Timeout bounds the whole wait.
	Timeout time.Duration

	// IncludeFailedLogs attaches the log tails of failed jobs when the
	// pipeline ends in "failed".
	IncludeFailedLogs bool
}

// DefaultWaitOptions matches a typical CI pipeline: check every 10 seconds
// for up to an hour, with failure logs.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Interval:          10 * time.Second,
		Timeout:           time.Hour,
		IncludeFailedLogs: true,
	}
}

// JobSummary counts the jobs of a finished pipeline by outcome.
type JobSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// FailedJob carries one failed job with the tail of its log.
type FailedJob struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	WebURL       string `json:"web_url"`
	LastLogLines string `json:"last_log_lines"`
}

// WaitResult is the outcome of WaitForPipeline.
type WaitResult struct {
	// FinalStatus is one of success, failed, canceled, skipped, or the
	// local timeout sentinel.
	FinalStatus string

	// Pipeline is the last observed pipeline state.
	Pipeline *Pipeline

	Checks  int
	Elapsed time.Duration

	// JobSummary and FailedJobs are populated after a terminal status,
	// never after a timeout.
	JobSummary *JobSummary
	FailedJobs []FailedJob
}

// WaitForPipeline blocks until the pipeline reaches a terminal status or the
// timeout elapses. A failure from the underlying status check (e.g. the
// pipeline being deleted mid-wait) aborts immediately with that typed error.
func (c *Client) WaitForPipeline(ctx context.Context, project string, pipelineID int, opts WaitOptions) (*WaitResult, error) {
	check := func(ctx context.Context) (*Pipeline, bool, error) {
		p, err := c.GetPipeline(ctx, project, pipelineID)
		if err != nil {
			return nil, false, err
		}
		return p, IsTerminalStatus(p.Status), nil
	}

	outcome, err := poll.Wait(ctx, check, opts.Interval, opts.Timeout)
	if err != nil {
		return nil, err
	}

	result := &WaitResult{
		Pipeline: outcome.Status,
		Checks:   outcome.Checks,
		Elapsed:  outcome.Elapsed,
	}
	if outcome.TimedOut {
		result.FinalStatus = StatusTimeout
		return result, nil
	}
	result.FinalStatus = outcome.Status.Status

	c.attachJobDetails(ctx, project, pipelineID, opts, result)
	return result, nil
}

// attachJobDetails decorates a terminal wait result with a job summary and,
// for failed pipelines, failed-job log tails. Best effort: the wait outcome
// stands even if the job endpoints fail afterwards.
func (c *Client) attachJobDetails(ctx context.Context, project string, pipelineID int, opts WaitOptions, result *WaitResult) {
	jobs, err := c.ListJobs(ctx, project, pipelineID)
	if err != nil {
		log.Warn().Err(err).
			Int("pipeline_id", pipelineID).
			Msg("Could not fetch job details for finished pipeline")
		return
	}

	summary := &JobSummary{Total: len(jobs)}
	var failed []Job
	for _, job := range jobs {
		switch job.Status {
		case StatusSuccess:
			summary.Success++
		case StatusFailed:
			summary.Failed++
			failed = append(failed, job)
		}
	}
	result.JobSummary = summary

	if !opts.IncludeFailedLogs || result.FinalStatus != StatusFailed {
		return
	}

	// Cap at 5 jobs to bound the extra round trips on large pipelines.
	if len(failed) > 5 {
		failed = failed[:5]
	}
	for _, job := range failed {
		detail := FailedJob{ID: job.ID, Name: job.Name, WebURL: job.WebURL}
		if logText, err := c.GetJobLog(ctx, project, job.ID); err != nil {
			detail.LastLogLines = "(log unavailable)"
		} else {
			detail.LastLogLines = logTail(logText, 10)
		}
		result.FailedJobs = append(result.FailedJobs, detail)
	}
}

// logTail returns the last n non-blank lines of a job log.
func logTail(logText string, n int) string {
	lines := strings.Split(strings.TrimSpace(logText), "\n")
	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "\n")
}
