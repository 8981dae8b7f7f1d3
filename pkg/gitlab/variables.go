package gitlab

import (
	"context"
	"net/http"

	"github.com/qodev/gitlab-api-client/pkg/client"
)

// VariableAction reports what SetVariable did.
type VariableAction string

const (
	// VariableCreated means the variable did not exist and was created.
	VariableCreated VariableAction = "created"

	// VariableUpdated means an existing variable was overwritten.
	VariableUpdated VariableAction = "updated"
)

// VariableOptions holds the attributes of a CI/CD variable write.
type VariableOptions struct {
	VariableType     string
	Protected        bool
	Masked           bool
	Raw              bool
	EnvironmentScope string
	Description      string
}

func (o VariableOptions) payload(key, value string, includeKey bool) map[string]any {
	variableType := o.VariableType
	if variableType == "" {
		variableType = "env_var"
	}
	scope := o.EnvironmentScope
	if scope == "" {
		scope = "*"
	}

	payload := map[string]any{
		"value":             value,
		"variable_type":     variableType,
		"protected":         o.Protected,
		"masked":            o.Masked,
		"raw":               o.Raw,
		"environment_scope": scope,
	}
	if includeKey {
		payload["key"] = key
	}
	if o.Description != "" {
		payload["description"] = o.Description
	}
	return payload
}

// GetVariable fetches one CI/CD variable. Returns (nil, nil) when the
// variable does not exist; other failures surface as typed errors.
func (c *Client) GetVariable(ctx context.Context, project, key string) (*Variable, error) {
	var v Variable
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/variables/%s", client.EscapePath(key)),
	}
	if err := c.api.Do(ctx, call, &v); err != nil {
		if client.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// ListVariables returns every CI/CD variable of a project with the values
// stripped, so listings can be logged or displayed without leaking secrets.
// Use GetVariable for the value of a specific key.
func (c *Client) ListVariables(ctx context.Context, project string) ([]Variable, error) {
	variables, err := listAll[Variable](ctx, c, client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/variables"),
	})
	if err != nil {
		return nil, err
	}

	for i := range variables {
		variables[i].Value = ""
	}
	return variables, nil
}

// CreateVariable creates a CI/CD variable. Fails if the key already exists
// in the same environment scope.
func (c *Client) CreateVariable(ctx context.Context, project, key, value string, opts VariableOptions) (*Variable, error) {
	var v Variable
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/variables"),
		Body:   opts.payload(key, value, true),
	}
	if err := c.api.Do(ctx, call, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateVariable overwrites an existing CI/CD variable.
func (c *Client) UpdateVariable(ctx context.Context, project, key, value string, opts VariableOptions) (*Variable, error) {
	var v Variable
	call := client.Call{
		Method: http.MethodPut,
		Path:   client.ProjectPath(project, "/variables/%s", client.EscapePath(key)),
		Body:   opts.payload(key, value, false),
	}
	if err := c.api.Do(ctx, call, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetVariable upserts a CI/CD variable: update when the key exists, create
// otherwise. The returned action says which happened.
func (c *Client) SetVariable(ctx context.Context, project, key, value string, opts VariableOptions) (*Variable, VariableAction, error) {
	existing, err := c.GetVariable(ctx, project, key)
	if err != nil {
		return nil, "", err
	}

	if existing != nil {
		v, err := c.UpdateVariable(ctx, project, key, value, opts)
		if err != nil {
			return nil, "", err
		}
		return v, VariableUpdated, nil
	}

	v, err := c.CreateVariable(ctx, project, key, value, opts)
	if err != nil {
		return nil, "", err
	}
	return v, VariableCreated, nil
}
