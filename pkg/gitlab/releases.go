package gitlab

import (
	"context"
	"net/http"
	"time"

	"github.com/qodev/gitlab-api-client/pkg/client"
)

// ListReleases returns the releases of a project, across all pages.
// orderBy defaults to released_at, sort to desc.
func (c *Client) ListReleases(ctx context.Context, project, orderBy, sort string) ([]Release, error) {
	if orderBy == "" {
		orderBy = "released_at"
	}
	if sort == "" {
		sort = "desc"
	}
	return listAll[Release](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/releases"),
		Query:  client.Params{"order_by": orderBy, "sort": sort},
	})
}

// GetRelease fetches one release by tag name.
func (c *Client) GetRelease(ctx context.Context, project, tagName string) (*Release, error) {
	var release Release
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/releases/%s", client.EscapePath(tagName)),
	}
	if err := c.api.Do(ctx, call, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// CreateReleaseOptions holds the fields for CreateRelease. Ref is required
// when the tag does not exist yet.
type CreateReleaseOptions struct {
	TagName     string
	Name        string
	Description string
	Ref         string
	Milestones  []string
	ReleasedAt  *time.Time
	AssetLinks  []ReleaseAssetLink
}

// CreateRelease creates a release for a tag. Not idempotent: a release for
// an already-released tag is a conflict.
func (c *Client) CreateRelease(ctx context.Context, project string, opts CreateReleaseOptions) (*Release, error) {
	payload := map[string]any{"tag_name": opts.TagName}
	if opts.Name != "" {
		payload["name"] = opts.Name
	}
	if opts.Description != "" {
		payload["description"] = opts.Description
	}
	if opts.Ref != "" {
		payload["ref"] = opts.Ref
	}
	if len(opts.Milestones) > 0 {
		payload["milestones"] = opts.Milestones
	}
	if opts.ReleasedAt != nil {
		payload["released_at"] = opts.ReleasedAt.Format(time.RFC3339)
	}
	if len(opts.AssetLinks) > 0 {
		payload["assets"] = map[string]any{"links": opts.AssetLinks}
	}

	var release Release
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/releases"),
		Body:   payload,
	}
	if err := c.api.Do(ctx, call, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// UpdateReleaseOptions holds the mutable release fields. Nil pointers leave
// the server value untouched.
type UpdateReleaseOptions struct {
	Name        *string
	Description *string
	Milestones  []string
	ReleasedAt  *time.Time
}

// UpdateRelease updates a release.
func (c *Client) UpdateRelease(ctx context.Context, project, tagName string, opts UpdateReleaseOptions) (*Release, error) {
	payload := map[string]any{}
	if opts.Name != nil {
		payload["name"] = *opts.Name
	}
	if opts.Description != nil {
		payload["description"] = *opts.Description
	}
	if opts.Milestones != nil {
		payload["milestones"] = opts.Milestones
	}
	if opts.ReleasedAt != nil {
		payload["released_at"] = opts.ReleasedAt.Format(time.RFC3339)
	}

	var release Release
	call := client.Call{
		Method: http.MethodPut,
		Path:   client.ProjectPath(project, "/releases/%s", client.EscapePath(tagName)),
		Body:   payload,
	}
	if err := c.api.Do(ctx, call, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// DeleteRelease deletes a release. The tag itself is left in place.
func (c *Client) DeleteRelease(ctx context.Context, project, tagName string) error {
	call := client.Call{
		Method: http.MethodDelete,
		Path:   client.ProjectPath(project, "/releases/%s", client.EscapePath(tagName)),
	}
	return c.api.Do(ctx, call, nil)
}
