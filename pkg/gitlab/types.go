package gitlab

import "time"

// User represents a GitLab user.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	State     string `json:"state"`
	AvatarURL string `json:"avatar_url"`
	WebURL    string `json:"web_url"`
}

// Namespace represents a GitLab namespace.
type Namespace struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	FullPath string `json:"full_path"`
}

// Project represents a GitLab project.
type Project struct {
	ID                int        `json:"id"`
	Name              string     `json:"name"`
	NameWithNamespace string     `json:"name_with_namespace"`
	Path              string     `json:"path"`
	PathWithNamespace string     `json:"path_with_namespace"`
	Description       string     `json:"description"`
	DefaultBranch     string     `json:"default_branch"`
	Visibility        string     `json:"visibility"`
	WebURL            string     `json:"web_url"`
	Archived          bool       `json:"archived"`
	CreatedAt         *time.Time `json:"created_at"`
	LastActivityAt    *time.Time `json:"last_activity_at"`
	Namespace         *Namespace `json:"namespace,omitempty"`
}

// Milestone represents a GitLab milestone.
type Milestone struct {
	ID    int    `json:"id"`
	IID   int    `json:"iid"`
	Title string `json:"title"`
	State string `json:"state"`
}

// MergeRequest represents a GitLab merge request.
type MergeRequest struct {
	ID           int        `json:"id"`
	IID          int        `json:"iid"`
	ProjectID    int        `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	State        string     `json:"state"`
	SourceBranch string     `json:"source_branch"`
	TargetBranch string     `json:"target_branch"`
	Author       *User      `json:"author,omitempty"`
	Assignees    []User     `json:"assignees,omitempty"`
	Reviewers    []User     `json:"reviewers,omitempty"`
	Labels       []string   `json:"labels"`
	Draft        bool       `json:"draft"`
	MergeStatus  string     `json:"merge_status"`
	SHA          string     `json:"sha"`
	WebURL       string     `json:"web_url"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Pipeline     *Pipeline  `json:"pipeline,omitempty"`
}

// DiffRefs anchors a merge request diff to its commits.
type DiffRefs struct {
	BaseSHA  string `json:"base_sha"`
	HeadSHA  string `json:"head_sha"`
	StartSHA string `json:"start_sha"`
}

// FileChange represents one changed file in a merge request diff.
type FileChange struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	AMode       string `json:"a_mode"`
	BMode       string `json:"b_mode"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
	Diff        string `json:"diff"`
}

// MergeRequestChanges is a merge request together with its file diffs.
type MergeRequestChanges struct {
	MergeRequest
	Changes  []FileChange `json:"changes"`
	DiffRefs *DiffRefs    `json:"diff_refs,omitempty"`
}

// Commit represents a commit in a merge request.
type Commit struct {
	ID           string     `json:"id"`
	ShortID      string     `json:"short_id"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	AuthorName   string     `json:"author_name"`
	AuthorEmail  string     `json:"author_email"`
	AuthoredDate *time.Time `json:"authored_date"`
	WebURL       string     `json:"web_url"`
}

// Approvals represents merge request approval state.
type Approvals struct {
	ID                int  `json:"id"`
	IID               int  `json:"iid"`
	ApprovalsRequired int  `json:"approvals_required"`
	ApprovalsLeft     int  `json:"approvals_left"`
	Approved          bool `json:"approved"`
	ApprovedBy        []struct {
		User User `json:"user"`
	} `json:"approved_by"`
}

// Note represents a comment on a merge request or issue.
type Note struct {
	ID         int        `json:"id"`
	Body       string     `json:"body"`
	Author     *User      `json:"author,omitempty"`
	System     bool       `json:"system"`
	Resolvable bool       `json:"resolvable"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

// Discussion represents a discussion thread on a merge request.
type Discussion struct {
	ID             string `json:"id"`
	IndividualNote bool   `json:"individual_note"`
	Notes          []Note `json:"notes"`
}

// Pipeline represents a GitLab CI pipeline.
type Pipeline struct {
	ID        int        `json:"id"`
	IID       int        `json:"iid"`
	ProjectID int        `json:"project_id"`
	Status    string     `json:"status"`
	Source    string     `json:"source"`
	Ref       string     `json:"ref"`
	SHA       string     `json:"sha"`
	WebURL    string     `json:"web_url"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// Job represents a single CI job within a pipeline.
type Job struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	Stage        string     `json:"stage"`
	Status       string     `json:"status"`
	AllowFailure bool       `json:"allow_failure"`
	Ref          string     `json:"ref"`
	WebURL       string     `json:"web_url"`
	Duration     float64    `json:"duration"`
	CreatedAt    *time.Time `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Issue represents a GitLab issue.
type Issue struct {
	ID          int        `json:"id"`
	IID         int        `json:"iid"`
	ProjectID   int        `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	Labels      []string   `json:"labels"`
	Milestone   *Milestone `json:"milestone,omitempty"`
	Assignees   []User     `json:"assignees,omitempty"`
	Author      *User      `json:"author,omitempty"`
	WebURL      string     `json:"web_url"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// ReleaseAssetLink represents one asset link attached to a release.
type ReleaseAssetLink struct {
	ID       int    `json:"id,omitempty"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	LinkType string `json:"link_type,omitempty"`
}

// Release represents a GitLab release.
type Release struct {
	Name            string     `json:"name"`
	TagName         string     `json:"tag_name"`
	Description     string     `json:"description"`
	CreatedAt       *time.Time `json:"created_at"`
	ReleasedAt      *time.Time `json:"released_at"`
	UpcomingRelease bool       `json:"upcoming_release"`
	Author          *User      `json:"author,omitempty"`
	Assets          *struct {
		Links []ReleaseAssetLink `json:"links"`
	} `json:"assets,omitempty"`
}

// Variable represents a project CI/CD variable. Value is populated only by
// single-variable lookups; list results have it stripped.
type Variable struct {
	Key              string `json:"key"`
	Value            string `json:"value,omitempty"`
	VariableType     string `json:"variable_type"`
	Protected        bool   `json:"protected"`
	Masked           bool   `json:"masked"`
	Raw              bool   `json:"raw"`
	EnvironmentScope string `json:"environment_scope"`
	Description      string `json:"description,omitempty"`
}

// Upload is the server's answer to a file upload: markdown-ready references
// to the stored file.
type Upload struct {
	Alt      string `json:"alt"`
	URL      string `json:"url"`
	FullPath string `json:"full_path"`
	Markdown string `json:"markdown"`
}

// Version describes the GitLab instance, used by the connectivity probe.
type Version struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
}
