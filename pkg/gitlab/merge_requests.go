package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/qodev/gitlab-api-client/pkg/client"
)

// ErrInvalidDiffPosition is returned when a DiffPosition anchors to neither
// an old nor a new line. Detected locally, before any request is sent.
var ErrInvalidDiffPosition = errors.New("diff position needs at least one of old line or new line")

// DiffPosition identifies one location in a merge request diff for an inline
// comment. Line numbers are 1-based; zero means unset. At least one of
// OldLine/NewLine must be set, both for context lines. Whether the line
// actually exists in the diff is the server's call, not validated here.
type DiffPosition struct {
	FilePath string
	NewLine  int
	OldLine  int
	BaseSHA  string
	HeadSHA  string
	StartSHA string
}

// payload renders the position in the wire shape the discussions endpoint
// expects.
func (p DiffPosition) payload() map[string]any {
	pos := map[string]any{
		"position_type": "text",
		"new_path":      p.FilePath,
		"old_path":      p.FilePath,
		"base_sha":      p.BaseSHA,
		"head_sha":      p.HeadSHA,
		"start_sha":     p.StartSHA,
	}
	if p.NewLine > 0 {
		pos["new_line"] = p.NewLine
	}
	if p.OldLine > 0 {
		pos["old_line"] = p.OldLine
	}
	return pos
}

// ListMergeRequests returns all merge requests in the given state
// ("opened", "closed", "merged", "all"), across all pages.
func (c *Client) ListMergeRequests(ctx context.Context, project, state string) ([]MergeRequest, error) {
	if state == "" {
		state = "opened"
	}
	return listAll[MergeRequest](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/merge_requests"),
		Query:  client.Params{"state": state},
	})
}

// GetMergeRequest fetches one merge request by internal ID.
func (c *Client) GetMergeRequest(ctx context.Context, project string, mrIID int) (*MergeRequest, error) {
	var mr MergeRequest
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/merge_requests/%d", mrIID),
	}
	if err := c.api.Do(ctx, call, &mr); err != nil {
		return nil, err
	}
	return &mr, nil
}

// ListDiscussions returns every discussion thread on a merge request.
func (c *Client) ListDiscussions(ctx context.Context, project string, mrIID int) ([]Discussion, error) {
	return listAll[Discussion](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/merge_requests/%d/discussions", mrIID),
	})
}

// GetChanges fetches the merge request together with its file diffs and
// the diff refs needed to anchor inline comments.
func (c *Client) GetChanges(ctx context.Context, project string, mrIID int) (*MergeRequestChanges, error) {
	var changes MergeRequestChanges
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/merge_requests/%d/changes", mrIID),
	}
	if err := c.api.Do(ctx, call, &changes); err != nil {
		return nil, err
	}
	return &changes, nil
}

// ListCommits returns the commits of a merge request, across all pages.
func (c *Client) ListCommits(ctx context.Context, project string, mrIID int) ([]Commit, error) {
	return listAll[Commit](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/merge_requests/%d/commits", mrIID),
	})
}

// GetApprovals fetches the approval state of a merge request.
func (c *Client) GetApprovals(ctx context.Context, project string, mrIID int) (*Approvals, error) {
	var approvals Approvals
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/merge_requests/%d/approvals", mrIID),
	}
	if err := c.api.Do(ctx, call, &approvals); err != nil {
		return nil, err
	}
	return &approvals, nil
}

// ListMergeRequestPipelines returns the pipelines triggered for a merge
// request, across all pages.
func (c *Client) ListMergeRequestPipelines(ctx context.Context, project string, mrIID int) ([]Pipeline, error) {
	return listAll[Pipeline](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/merge_requests/%d/pipelines", mrIID),
	})
}

// CreateMergeRequestNote adds a plain comment to a merge request.
func (c *Client) CreateMergeRequestNote(ctx context.Context, project string, mrIID int, body string) (*Note, error) {
	var note Note
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/merge_requests/%d/notes", mrIID),
		Body:   map[string]any{"body": body},
	}
	if err := c.api.Do(ctx, call, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// ReplyToDiscussion adds a note to an existing discussion thread.
func (c *Client) ReplyToDiscussion(ctx context.Context, project string, mrIID int, discussionID, body string) (*Note, error) {
	var note Note
	call := client.Call{
		Method: http.MethodPost,
		Path: client.ProjectPath(project, "/merge_requests/%d/discussions/%s/notes",
			mrIID, client.EscapePath(discussionID)),
		Body: map[string]any{"body": body},
	}
	if err := c.api.Do(ctx, call, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// CreateDiscussion starts a discussion on a merge request, optionally
// anchored inline at a diff position. An invalid position is rejected
// locally before any request is sent.
func (c *Client) CreateDiscussion(ctx context.Context, project string, mrIID int, body string, position *DiffPosition) (*Discussion, error) {
	payload := map[string]any{"body": body}
	if position != nil {
		if position.NewLine == 0 && position.OldLine == 0 {
			return nil, ErrInvalidDiffPosition
		}
		payload["position"] = position.payload()
	}

	var discussion Discussion
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/merge_requests/%d/discussions", mrIID),
		Body:   payload,
	}
	if err := c.api.Do(ctx, call, &discussion); err != nil {
		return nil, err
	}
	return &discussion, nil
}

// ResolveDiscussion resolves or unresolves a discussion thread.
func (c *Client) ResolveDiscussion(ctx context.Context, project string, mrIID int, discussionID string, resolved bool) (*Discussion, error) {
	var discussion Discussion
	call := client.Call{
		Method: http.MethodPut,
		Path: client.ProjectPath(project, "/merge_requests/%d/discussions/%s",
			mrIID, client.EscapePath(discussionID)),
		Body: map[string]any{"resolved": resolved},
	}
	if err := c.api.Do(ctx, call, &discussion); err != nil {
		return nil, err
	}
	return &discussion, nil
}

// CreateMergeRequestOptions holds the fields for CreateMergeRequest.
// Zero-valued optional fields are omitted from the request.
type CreateMergeRequestOptions struct {
	SourceBranch       string
	TargetBranch       string
	Title              string
	Description        string
	AssigneeIDs        []int
	ReviewerIDs        []int
	Labels             []string
	RemoveSourceBranch bool
	Squash             *bool
	AllowCollaboration bool
}

// CreateMergeRequest opens a new merge request. Not idempotent: calling it
// twice opens two merge requests (or fails on the duplicate branch pair).
func (c *Client) CreateMergeRequest(ctx context.Context, project string, opts CreateMergeRequestOptions) (*MergeRequest, error) {
	payload := map[string]any{
		"source_branch":        opts.SourceBranch,
		"target_branch":        opts.TargetBranch,
		"title":                opts.Title,
		"remove_source_branch": opts.RemoveSourceBranch,
		"allow_collaboration":  opts.AllowCollaboration,
	}
	if opts.Description != "" {
		payload["description"] = opts.Description
	}
	if len(opts.AssigneeIDs) > 0 {
		payload["assignee_ids"] = opts.AssigneeIDs
	}
	if len(opts.ReviewerIDs) > 0 {
		payload["reviewer_ids"] = opts.ReviewerIDs
	}
	if len(opts.Labels) > 0 {
		payload["labels"] = opts.Labels
	}
	if opts.Squash != nil {
		payload["squash"] = *opts.Squash
	}

	var mr MergeRequest
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/merge_requests"),
		Body:   payload,
	}
	if err := c.api.Do(ctx, call, &mr); err != nil {
		return nil, err
	}
	return &mr, nil
}

// UpdateMergeRequestOptions holds the mutable merge request fields. Nil
// pointers leave the server value untouched.
type UpdateMergeRequestOptions struct {
	Title        *string
	Description  *string
	TargetBranch *string
	StateEvent   *string
	AssigneeIDs  []int
	ReviewerIDs  []int
	Labels       []string
}

// UpdateMergeRequest updates a merge request.
func (c *Client) UpdateMergeRequest(ctx context.Context, project string, mrIID int, opts UpdateMergeRequestOptions) (*MergeRequest, error) {
	payload := map[string]any{}
	if opts.Title != nil {
		payload["title"] = *opts.Title
	}
	if opts.Description != nil {
		payload["description"] = *opts.Description
	}
	if opts.TargetBranch != nil {
		payload["target_branch"] = *opts.TargetBranch
	}
	if opts.StateEvent != nil {
		payload["state_event"] = *opts.StateEvent
	}
	if opts.AssigneeIDs != nil {
		payload["assignee_ids"] = opts.AssigneeIDs
	}
	if opts.ReviewerIDs != nil {
		payload["reviewer_ids"] = opts.ReviewerIDs
	}
	if opts.Labels != nil {
		payload["labels"] = opts.Labels
	}

	var mr MergeRequest
	call := client.Call{
		Method: http.MethodPut,
		Path:   client.ProjectPath(project, "/merge_requests/%d", mrIID),
		Body:   payload,
	}
	if err := c.api.Do(ctx, call, &mr); err != nil {
		return nil, err
	}
	return &mr, nil
}

// CloseMergeRequest closes a merge request without merging.
func (c *Client) CloseMergeRequest(ctx context.Context, project string, mrIID int) (*MergeRequest, error) {
	event := "close"
	return c.UpdateMergeRequest(ctx, project, mrIID, UpdateMergeRequestOptions{StateEvent: &event})
}

// MergeOptions holds the fields for MergeMergeRequest.
type MergeOptions struct {
	MergeCommitMessage        string
	SquashCommitMessage       string
	ShouldRemoveSourceBranch  bool
	MergeWhenPipelineSucceeds bool
	Squash                    *bool
}

// MergeMergeRequest merges a merge request. Merge refusals come back as a
// structured message when the server supplies one ("branch cannot be
// merged", "not allowed", ...), so the caller sees the reason instead of a
// bare status code.
func (c *Client) MergeMergeRequest(ctx context.Context, project string, mrIID int, opts MergeOptions) (*MergeRequest, error) {
	payload := map[string]any{
		"should_remove_source_branch":  opts.ShouldRemoveSourceBranch,
		"merge_when_pipeline_succeeds": opts.MergeWhenPipelineSucceeds,
	}
	if opts.MergeCommitMessage != "" {
		payload["merge_commit_message"] = opts.MergeCommitMessage
	}
	if opts.SquashCommitMessage != "" {
		payload["squash_commit_message"] = opts.SquashCommitMessage
	}
	if opts.Squash != nil {
		payload["squash"] = *opts.Squash
	}

	var mr MergeRequest
	call := client.Call{
		Method: http.MethodPut,
		Path:   client.ProjectPath(project, "/merge_requests/%d/merge", mrIID),
		Body:   payload,
	}
	if err := c.api.Do(ctx, call, &mr); err != nil {
		return nil, withServerMessage(err)
	}
	return &mr, nil
}

// withServerMessage lifts the server's "message" field into an APIError when
// the error body happens to be JSON. Best effort; the raw body stays intact.
func withServerMessage(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "" {
		return err
	}

	var body struct {
		Message json.RawMessage `json:"message"`
	}
	if json.Unmarshal([]byte(apiErr.Body), &body) != nil || len(body.Message) == 0 {
		return err
	}

	var msg string
	if json.Unmarshal(body.Message, &msg) != nil {
		msg = string(body.Message)
	}
	apiErr.Message = fmt.Sprintf("server message: %s", msg)
	return apiErr
}
