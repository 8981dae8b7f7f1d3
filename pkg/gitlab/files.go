package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/qodev/gitlab-api-client/pkg/client"
)

// ErrEmptyFileSource is returned when a FileSource names neither a local
// path nor in-memory content.
var ErrEmptyFileSource = errors.New("file source needs a path or content with a filename")

// FileSource references a file to upload: either a local path, or an
// in-memory buffer plus a filename. It is resolved to bytes immediately
// before the request is built and not retained afterwards.
type FileSource struct {
	// Path to a local file. When set, Content and Filename are ignored and
	// the filename is the path's base name.
	Path string

	// Content holds the file bytes for in-memory sources.
	Content []byte

	// Filename names an in-memory source. Required with Content.
	Filename string

	// ContentType of the upload part. Defaults to application/octet-stream;
	// never sniffed from the content.
	ContentType string
}

// resolve produces the filename and bytes to send.
func (s FileSource) resolve() (string, []byte, error) {
	if s.Path != "" {
		content, err := os.ReadFile(s.Path)
		if err != nil {
			return "", nil, fmt.Errorf("read upload source: %w", err)
		}
		return filepath.Base(s.Path), content, nil
	}
	if len(s.Content) > 0 && s.Filename != "" {
		return s.Filename, s.Content, nil
	}
	return "", nil, ErrEmptyFileSource
}

// GetFileContent returns the raw content of a repository file at a ref.
func (c *Client) GetFileContent(ctx context.Context, project, filePath, ref string) (string, error) {
	var raw []byte
	call := client.Call{
		Method: http.MethodGet,
		Path:   client.ProjectPath(project, "/repository/files/%s/raw", client.EscapePath(filePath)),
		Query:  client.Params{"ref": ref},
	}
	if err := c.api.Do(ctx, call, &raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

// UploadFile uploads a file to the project for referencing in markdown
// (descriptions, comments). The source is validated locally before any
// request is sent.
func (c *Client) UploadFile(ctx context.Context, project string, source FileSource) (*Upload, error) {
	filename, content, err := source.resolve()
	if err != nil {
		return nil, err
	}

	var upload Upload
	call := client.Call{
		Method: http.MethodPost,
		Path:   client.ProjectPath(project, "/uploads"),
		Upload: &client.Multipart{
			Field:       "file",
			Filename:    filename,
			Content:     content,
			ContentType: source.ContentType,
		},
	}
	if err := c.api.Do(ctx, call, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}
