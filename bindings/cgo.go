package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"unsafe"

	"github.com/pggit/pggit"
	"github.com/pggit/pggit/core"
	"github.com/pggit/pggit/merge"
	"github.com/pggit/pggit/snapshot"
	"github.com/pggit/pggit/store"
	"github.com/pggit/pggit/trinity"
)

// Handle represents an open engine instance
type Handle struct {
	instance *pggit.Instance
	identity core.Identity
}

// Global handle storage (simplified - in production use a map with mutex)
var handles = make(map[int]*Handle)
var nextHandle = 1

// Response mirrors the server protocol for consistency
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type CommitResponse struct {
	ID          string   `json:"id"`
	Parents     []string `json:"parents"`
	Branch      string   `json:"branch"`
	Message     string   `json:"message"`
	Fingerprint string   `json:"fingerprint"`
	Author      string   `json:"author"`
}

type MergeResponse struct {
	UpToDate    bool            `json:"up_to_date"`
	FastForward bool            `json:"fast_forward"`
	Resolved    int             `json:"resolved"`
	Conflicts   []string        `json:"conflicts,omitempty"`
	Commit      *CommitResponse `json:"commit,omitempty"`
}

func register(instance *pggit.Instance, identity core.Identity) C.int {
	handle := nextHandle
	nextHandle++
	handles[handle] = &Handle{instance: instance, identity: identity}
	return C.int(handle)
}

func bindingIdentity() core.Identity {
	return core.Identity{
		Name:  "pgGit Python",
		Email: "python@pggit.local",
	}
}

//export pggit_open_memory
func pggit_open_memory() C.int {
	instance, err := pggit.Open(context.Background(), pggit.Config{})
	if err != nil {
		return -1
	}
	if _, err := instance.Store.Init(context.Background(), bindingIdentity()); err != nil {
		instance.Close()
		return -1
	}
	return register(instance, bindingIdentity())
}

//export pggit_open_file
func pggit_open_file(path *C.char, hotDir *C.char) C.int {
	cfg := pggit.Config{
		Path:   C.GoString(path),
		HotDir: C.GoString(hotDir),
	}

	instance, err := pggit.Open(context.Background(), cfg)
	if err != nil {
		return -1
	}
	if _, err := instance.Store.Init(context.Background(), bindingIdentity()); err != nil {
		instance.Close()
		return -1
	}
	return register(instance, bindingIdentity())
}

//export pggit_close
func pggit_close(handle C.int) {
	if h, ok := handles[int(handle)]; ok {
		h.instance.Close()
	}
	delete(handles, int(handle))
}

//export pggit_commit
func pggit_commit(handle C.int, branch, message, snapshotJSON *C.char) *C.char {
	h, ok := handles[int(handle)]
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	var elements []snapshot.Element
	if err := json.Unmarshal([]byte(C.GoString(snapshotJSON)), &elements); err != nil {
		return makeErrorResponse(err.Error())
	}

	commit, err := h.instance.Store.Commit(context.Background(),
		C.GoString(branch), C.GoString(message),
		snapshot.Snapshot{Elements: elements}, h.identity)
	if err != nil {
		return makeErrorResponse(err.Error())
	}

	return makeResponse("commit", commitResponse(commit))
}

//export pggit_branch
func pggit_branch(handle C.int, name, from *C.char) *C.char {
	h, ok := handles[int(handle)]
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	id, err := trinity.Parse(C.GoString(from))
	if err != nil {
		return makeErrorResponse(err.Error())
	}
	if _, err := h.instance.Store.CreateBranch(context.Background(), C.GoString(name), id); err != nil {
		return makeErrorResponse(err.Error())
	}

	return makeResponse("branch", map[string]string{"name": C.GoString(name)})
}

//export pggit_branches
func pggit_branches(handle C.int) *C.char {
	h, ok := handles[int(handle)]
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	branches, err := h.instance.Store.Branches(context.Background())
	if err != nil {
		return makeErrorResponse(err.Error())
	}

	return makeResponse("branches", branches)
}

//export pggit_merge
func pggit_merge(handle C.int, source, target, strategy *C.char) *C.char {
	h, ok := handles[int(handle)]
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	result, err := h.instance.Merger.Merge(context.Background(),
		C.GoString(source), C.GoString(target), h.identity,
		merge.Options{Strategy: merge.Strategy(C.GoString(strategy))})
	if err != nil {
		return makeErrorResponse(err.Error())
	}

	mr := MergeResponse{
		UpToDate:    result.UpToDate,
		FastForward: result.FastForward,
		Resolved:    len(result.Resolved),
	}
	if result.Report != nil {
		for _, c := range result.Report.Conflicts {
			mr.Conflicts = append(mr.Conflicts, c.Key)
		}
	}
	if result.Commit != nil {
		cr := commitResponse(*result.Commit)
		mr.Commit = &cr
	}

	return makeResponse("merge", mr)
}

//export pggit_history
func pggit_history(handle C.int, branch *C.char, limit C.int) *C.char {
	h, ok := handles[int(handle)]
	if !ok {
		return makeErrorResponse("Invalid handle")
	}

	ctx := context.Background()
	b, err := h.instance.Store.GetBranch(ctx, C.GoString(branch))
	if err != nil {
		return makeErrorResponse(err.Error())
	}

	var commits []CommitResponse
	for commit, err := range h.instance.Store.History(ctx, b.Head) {
		if err != nil {
			return makeErrorResponse(err.Error())
		}
		commits = append(commits, commitResponse(commit))
		if limit > 0 && len(commits) >= int(limit) {
			break
		}
	}

	return makeResponse("history", commits)
}

//export pggit_free
func pggit_free(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

func commitResponse(commit store.Commit) CommitResponse {
	parents := make([]string, 0, len(commit.Parents))
	for _, p := range commit.Parents {
		parents = append(parents, p.String())
	}
	return CommitResponse{
		ID:          commit.ID.String(),
		Parents:     parents,
		Branch:      commit.Branch,
		Message:     commit.Message,
		Fingerprint: commit.Fingerprint.String(),
		Author:      commit.Author.String(),
	}
}

func makeResponse(respType string, result any) *C.char {
	data, err := json.Marshal(result)
	if err != nil {
		return makeErrorResponse(err.Error())
	}
	resp := Response{
		Success: true,
		Type:    respType,
		Result:  data,
	}
	jsonData, _ := json.Marshal(resp)
	return C.CString(string(jsonData))
}

func makeErrorResponse(msg string) *C.char {
	resp := Response{
		Success: false,
		Error:   msg,
	}
	jsonData, _ := json.Marshal(resp)
	return C.CString(string(jsonData))
}

func main() {}
