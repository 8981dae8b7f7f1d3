package gitlab

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/qodev/gitlab-api-client/internal/testutil"
	"github.com/qodev/gitlab-api-client/pkg/client"
)

func TestGetVariable_MissingIsNilNotError(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()

	gl := newTestFacade(t, mock)

	v, err := gl.GetVariable(context.Background(), "1", "MISSING_KEY")
	if err != nil {
		t.Fatalf("A missing variable is an answer, not an error; got %v", err)
	}
	if v != nil {
		t.Errorf("Variable = %+v, want nil", v)
	}
}

func TestGetVariable_OtherErrorsSurface(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetResponse("/projects/1/variables/SECRET", testutil.NewErrorResponse(403, "403 Forbidden"))

	gl := newTestFacade(t, mock)

	_, err := gl.GetVariable(context.Background(), "1", "SECRET")
	if client.KindOf(err) != client.KindAuth {
		t.Errorf("KindOf = %q, want %q", client.KindOf(err), client.KindAuth)
	}
}

func TestListVariables_StripsValues(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetJSON("/projects/1/variables", []map[string]any{
		{"key": "DEPLOY_TOKEN", "value": "super-secret", "masked": true},
		{"key": "REGION", "value": "eu-west-1"},
	})

	gl := newTestFacade(t, mock)

	variables, err := gl.ListVariables(context.Background(), "1")
	if err != nil {
		t.Fatalf("ListVariables failed: %v", err)
	}
	if len(variables) != 2 {
		t.Fatalf("Variables = %d, want 2", len(variables))
	}
	for _, v := range variables {
		if v.Value != "" {
			t.Errorf("Variable %s still carries its value %q", v.Key, v.Value)
		}
	}
	if variables[0].Key != "DEPLOY_TOKEN" || !variables[0].Masked {
		t.Errorf("Metadata lost: %+v", variables[0])
	}
}

func TestSetVariable_CreatesWhenMissing(t *testing.T) {
	var (
		createMethod string
		payload      map[string]any
	)
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	// GET /variables/NEW_KEY falls through to the mock's default 404.
	mock.SetHandler("/projects/1/variables", func(w http.ResponseWriter, r *http.Request) {
		createMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"key":"NEW_KEY","value":"v1"}`))
	})

	gl := newTestFacade(t, mock)

	v, action, err := gl.SetVariable(context.Background(), "1", "NEW_KEY", "v1", VariableOptions{Masked: true})
	if err != nil {
		t.Fatalf("SetVariable failed: %v", err)
	}
	if action != VariableCreated {
		t.Errorf("Action = %q, want created", action)
	}
	if v.Key != "NEW_KEY" {
		t.Errorf("Key = %q, want NEW_KEY", v.Key)
	}

	if createMethod != http.MethodPost {
		t.Errorf("Method = %q, want POST", createMethod)
	}
	if payload["key"] != "NEW_KEY" || payload["masked"] != true {
		t.Errorf("Payload = %v, want key and masked set", payload)
	}
	// Unset options fall back to GitLab's defaults.
	if payload["variable_type"] != "env_var" || payload["environment_scope"] != "*" {
		t.Errorf("Defaults = %v/%v, want env_var and *", payload["variable_type"], payload["environment_scope"])
	}
}

func TestSetVariable_UpdatesWhenPresent(t *testing.T) {
	var (
		updateMethod string
		payload      map[string]any
	)
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetHandler("/projects/1/variables/EXISTING", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"key":"EXISTING","value":"old"}`))
			return
		}
		updateMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &payload)
		w.Write([]byte(`{"key":"EXISTING","value":"new"}`))
	})

	gl := newTestFacade(t, mock)

	v, action, err := gl.SetVariable(context.Background(), "1", "EXISTING", "new", VariableOptions{})
	if err != nil {
		t.Fatalf("SetVariable failed: %v", err)
	}
	if action != VariableUpdated {
		t.Errorf("Action = %q, want updated", action)
	}
	if v.Value != "new" {
		t.Errorf("Value = %q, want new", v.Value)
	}

	if updateMethod != http.MethodPut {
		t.Errorf("Method = %q, want PUT", updateMethod)
	}
	// The update endpoint names the key in the path, not the body.
	if _, exists := payload["key"]; exists {
		t.Errorf("Payload = %v, key must not be repeated in the body", payload)
	}
	if payload["value"] != "new" {
		t.Errorf("value = %v, want new", payload["value"])
	}
}

func TestSetVariable_ProbeFailureAborts(t *testing.T) {
	mock := testutil.NewMockGitLab()
	defer mock.Close()
	mock.SetResponse("/projects/1/variables/KEY", testutil.NewErrorResponse(500, "500 Internal Server Error"))

	gl := newTestFacade(t, mock)

	_, _, err := gl.SetVariable(context.Background(), "1", "KEY", "v", VariableOptions{})
	if client.KindOf(err) != client.KindAPI {
		t.Fatalf("Expected the probe's API error, got %v", err)
	}
	// Only the probe ran; no blind create or update followed.
	if mock.GetRequestCount() != 1 {
		t.Errorf("Request count = %d, want 1", mock.GetRequestCount())
	}
}
