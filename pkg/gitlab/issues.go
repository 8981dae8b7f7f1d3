package gitlab

import (
	"context"
	"net/http"

	"github.com/qodev/gitlab-api-client/pkg/client"
)

// ListIssuesOptions filters ListIssues. Zero-valued fields are omitted.
type ListIssuesOptions struct {
	State      string
	Labels     []string
	AssigneeID int
	Milestone  string
}

// ListIssues returns the issues matching the filters, across all pages.
func (c *Client) ListIssues(ctx context.Context, project string, opts ListIssuesOptions) ([]Issue, error) {
	state := opts.State
	if state == "" {
		state = "opened"
	}
	query := client.Params{"state": state}
	if len(opts.Labels) > 0 {
		query["labels"] = opts.Labels
	}
	if opts.AssigneeID > 0 {
		query["assignee_id"] = opts.AssigneeID
	}
	if opts.Milestone != "" {
		query["milestone"] = opts.Milestone
	}

	return listAll[Issue](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/issues"),
		Query:  query,
	})
}

// GetIssue fetches one issue by internal ID.
func (c *Client) GetIssue(ctx context.Context, project string, issueIID int) (*Issue, error) {
	var issue Issue
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/issues/%d", issueIID),
	}
	if err := c.api.Do(ctx, call, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssueOptions holds the fields for CreateIssue.
type CreateIssueOptions struct {
	Title       string
	Description string
	Labels      []string
	AssigneeIDs []int
	MilestoneID int
}

// CreateIssue opens a new issue. Not idempotent.
func (c *Client) CreateIssue(ctx context.Context, project string, opts CreateIssueOptions) (*Issue, error) {
	payload := map[string]any{"title": opts.Title}
	if opts.Description != "" {
		payload["description"] = opts.Description
	}
	if len(opts.Labels) > 0 {
		payload["labels"] = opts.Labels
	}
	if len(opts.AssigneeIDs) > 0 {
		payload["assignee_ids"] = opts.AssigneeIDs
	}
	if opts.MilestoneID > 0 {
		payload["milestone_id"] = opts.MilestoneID
	}

	var issue Issue
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/issues"),
		Body:   payload,
	}
	if err := c.api.Do(ctx, call, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// UpdateIssueOptions holds the mutable issue fields. Nil pointers leave the
// server value untouched.
type UpdateIssueOptions struct {
	Title       *string
	Description *string
	StateEvent  *string
	Labels      []string
	AssigneeIDs []int
	MilestoneID *int
}

// UpdateIssue updates an issue.
func (c *Client) UpdateIssue(ctx context.Context, project string, issueIID int, opts UpdateIssueOptions) (*Issue, error) {
	payload := map[string]any{}
	if opts.Title != nil {
		payload["title"] = *opts.Title
	}
	if opts.Description != nil {
		payload["description"] = *opts.Description
	}
	if opts.StateEvent != nil {
		payload["state_event"] = *opts.StateEvent
	}
	if opts.Labels != nil {
		payload["labels"] = opts.Labels
	}
	if opts.AssigneeIDs != nil {
		payload["assignee_ids"] = opts.AssigneeIDs
	}
	if opts.MilestoneID != nil {
		payload["milestone_id"] = *opts.MilestoneID
	}

	var issue Issue
	call := client.Call{
		Method: http.MethodPut,
		Path:   client.ProjectPath(project, "/issues/%d", issueIID),
		Body:   payload,
	}
	if err := c.api.Do(ctx, call, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CloseIssue closes an issue.
func (c *Client) CloseIssue(ctx context.Context, project string, issueIID int) (*Issue, error) {
	event := "close"
	return c.UpdateIssue(ctx, project, issueIID, UpdateIssueOptions{StateEvent: &event})
}

// ListIssueNotes returns every note on an issue, across all pages.
func (c *Client) ListIssueNotes(ctx context.Context, project string, issueIID int) ([]Note, error) {
	return listAll[Note](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/issues/%d/notes", issueIID),
	})
}

// CreateIssueNote adds a comment to an issue.
func (c *Client) CreateIssueNote(ctx context.Context, project string, issueIID int, body string) (*Note, error) {
	var note Note
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/issues/%d/notes", issueIID),
		Body:   map[string]any{"body": body},
	}
	if err := c.api.Do(ctx, call, &note); err != nil {
		return nil, err
	}
	return &note, nil
}
