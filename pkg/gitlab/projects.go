package gitlab

import (
	"context"
	"net/http"

	"github.com/qodev/gitlab-api-client/pkg/client"
)

// ListProjectsOptions filters ListProjects.
type ListProjectsOptions struct {
	// Owned restricts the list to projects owned by the authenticated user.
	Owned bool

	// Membership restricts the list to projects the user is a member of.
	Membership bool
}

// ListProjects returns all projects visible under the given filters,
// across all pages.
func (c *Client) ListProjects(ctx context.Context, opts ListProjectsOptions) ([]Project, error) {
	return listAll[Project](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   "/projects",
		Query: client.Params{
			"owned":      opts.Owned,
			"membership": opts.Membership,
		},
	})
}

// GetProject fetches one project by numeric ID or namespace/project path.
func (c *Client) GetProject(ctx context.Context, project string) (*Project, error) {
	var p Project
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, ""),
	}
	if err := c.api.Do(ctx, call, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
