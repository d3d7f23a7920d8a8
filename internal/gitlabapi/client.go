// Package gitlabapi is a minimal client for the GitLab API v4 repository
// file and tree endpoints, the only surface GitLabStore needs.
package gitlabapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client talks to a single GitLab project's repository API over a shared
// pooled *http.Client.
type Client struct {
	httpClient *http.Client
	repoID     int
	apiURL     string
	token      string
}

// NewClient returns a Client for the given project and personal/project access token.
// apiURL is e.g. "https://gitlab.com/api/v4/"; a missing trailing slash is added.
func NewClient(repoID int, accessToken, apiURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		repoID:     repoID,
		apiURL:     strings.TrimSuffix(apiURL, "/") + "/",
		token:      accessToken,
	}
}

func (c *Client) filesURL(filePath string) string {
	return fmt.Sprintf("%sprojects/%d/repository/files/%s", c.apiURL, c.repoID, url.QueryEscape(filePath))
}

func (c *Client) treeURL() string {
	return fmt.Sprintf("%sprojects/%d/repository/tree", c.apiURL, c.repoID)
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, query url.Values, body io.Reader) (*http.Request, error) {
	if query != nil {
		rawURL = rawURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

// CreateFileBody is the JSON body for the create-file endpoint.
type CreateFileBody struct {
	Branch        string `json:"branch"`
	CommitMessage string `json:"commit_message"`
	Content       string `json:"content,omitempty"`
	Encoding      string `json:"encoding,omitempty"`
}

// CreateFile creates (or, for GitLab, commits) a file at filePath on a branch.
// Callers inspect the returned status code themselves — GitLabStore treats 201
// as success and 400 ("file exists") as BucketAlreadyExists.
func (c *Client) CreateFile(ctx context.Context, filePath string, body CreateFileBody) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gitlabapi: marshal create file body: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.filesURL(filePath), nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// DeleteFile deletes filePath on branch. Status 204 means success; 400
// ("file does not exist") is treated as idempotent success by the caller.
func (c *Client) DeleteFile(ctx context.Context, filePath, branch, commitMessage string) (*http.Response, error) {
	query := url.Values{
		"branch":         {branch},
		"commit_message": {commitMessage},
	}
	req, err := c.newRequest(ctx, http.MethodDelete, c.filesURL(filePath), query, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

// GetFile fetches the raw GitLab file-metadata response (base64 content plus
// envelope) for filePath at ref. Status 200 means found, 404 means absent.
func (c *Client) GetFile(ctx context.Context, filePath, ref string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.filesURL(filePath), url.Values{"ref": {ref}}, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

// FileHead is the metadata GitLab returns on a file HEAD: body size and the
// server-computed SHA-256 of the blob content.
type FileHead struct {
	Size         int64
	ContentSHA256 string
}

// HeadFile issues a HEAD request for filePath at ref and parses the
// x-gitlab-size/x-gitlab-content-sha256 response headers. No body is transferred.
func (c *Client) HeadFile(ctx context.Context, filePath, ref string) (FileHead, error) {
	req, err := c.newRequest(ctx, http.MethodHead, c.filesURL(filePath), url.Values{"ref": {ref}}, nil)
	if err != nil {
		return FileHead{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileHead{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FileHead{}, &StatusError{StatusCode: resp.StatusCode, Body: readAndClose(resp)}
	}

	size, err := strconv.ParseInt(resp.Header.Get("x-gitlab-size"), 10, 64)
	if err != nil {
		return FileHead{}, fmt.Errorf("gitlabapi: parse x-gitlab-size: %w", err)
	}

	return FileHead{
		Size:          size,
		ContentSHA256: resp.Header.Get("x-gitlab-content-sha256"),
	}, nil
}

// DecodeFileContent extracts and base64-decodes the content field of a
// get-file response body.
func DecodeFileContent(body io.Reader) ([]byte, error) {
	var file struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(body).Decode(&file); err != nil {
		return nil, fmt.Errorf("gitlabapi: decode file response: %w", err)
	}
	return base64.StdEncoding.DecodeString(file.Content)
}

// TreeItem is one entry of a repository tree listing.
type TreeItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "blob" or "tree"
	Path string `json:"path"`
}

// TreePage is one page of a tree listing plus GitLab's pagination headers.
type TreePage struct {
	Items      []TreeItem
	TotalPages int
}

// TreeParams selects the tree page to fetch.
type TreeParams struct {
	Ref       string
	Path      string
	Recursive bool
	Page      int
	PerPage   int
}

// GetTree fetches one page of the repository tree, scoped to params.Path when
// set and recursive when params.Recursive is set.
func (c *Client) GetTree(ctx context.Context, params TreeParams) (TreePage, error) {
	query := url.Values{"ref": {params.Ref}}
	if params.Path != "" {
		query.Set("path", params.Path)
	}
	if params.Recursive {
		query.Set("recursive", "true")
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(params.PerPage))
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.treeURL(), query, nil)
	if err != nil {
		return TreePage{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TreePage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TreePage{}, &StatusError{StatusCode: resp.StatusCode, Body: readAndClose(resp)}
	}

	var items []TreeItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return TreePage{}, fmt.Errorf("gitlabapi: decode tree page: %w", err)
	}

	totalPages, _ := strconv.Atoi(resp.Header.Get("x-total-pages"))
	return TreePage{Items: items, TotalPages: totalPages}, nil
}

// StatusError wraps an unexpected GitLab HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gitlab error (%d): %s", e.StatusCode, e.Body)
}

func readAndClose(resp *http.Response) string {
	data, _ := io.ReadAll(resp.Body)
	return string(data)
}
