// Package main provides a TCP server for the pgGit engine.
package main

import (
	"encoding/json"
)

// Request represents one engine operation from the client. Clients send one
// JSON-encoded request per line.
type Request struct {
	Op string `json:"op"`

	// Branch names the branch for commit, create_branch, delete_branch,
	// and history.
	Branch string `json:"branch,omitempty"`

	// Message is the commit or merge message.
	Message string `json:"message,omitempty"`

	// Snapshot is the encoded snapshot for commit operations.
	Snapshot json.RawMessage `json:"snapshot,omitempty"`

	// From is the source commit ID for create_branch.
	From string `json:"from,omitempty"`

	// Source and Target name the branches for merge.
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`

	// Strategy selects the merge conflict resolution strategy.
	Strategy string `json:"strategy,omitempty"`

	// A and B are commit IDs for diff.
	A string `json:"a,omitempty"`
	B string `json:"b,omitempty"`

	// Commit is the commit ID for show.
	Commit string `json:"commit,omitempty"`

	// Limit caps the number of commits returned by history (0 = no limit).
	Limit int `json:"limit,omitempty"`
}

// Response represents the server's response to a request.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// CommitInfo describes one commit in responses.
type CommitInfo struct {
	ID          string   `json:"id"`
	Parents     []string `json:"parents,omitempty"`
	Branch      string   `json:"branch"`
	Message     string   `json:"message"`
	Fingerprint string   `json:"fingerprint"`
	Author      string   `json:"author"`
	CreatedAt   string   `json:"created_at"`
}

// BranchInfo describes one branch pointer.
type BranchInfo struct {
	Name string `json:"name"`
	Head string `json:"head"`
}

// ChangeInfo describes one element-level change in a diff response.
type ChangeInfo struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

// MergeResponse contains the outcome of a merge request.
type MergeResponse struct {
	UpToDate    bool        `json:"up_to_date,omitempty"`
	FastForward bool        `json:"fast_forward,omitempty"`
	Resolved    int         `json:"resolved,omitempty"`
	Commit      *CommitInfo `json:"commit,omitempty"`
	Conflicts   []string    `json:"conflicts,omitempty"`
}

// AuthResponse contains the outcome of an AUTH command.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity,omitempty"`
	ExpiresIn     int    `json:"expires_in,omitempty"`
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses a JSON request from a byte slice.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(data, &req)
	return req, err
}
