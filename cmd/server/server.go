package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pggit/pggit"
	"github.com/pggit/pggit/core"
	"github.com/pggit/pggit/merge"
	"github.com/pggit/pggit/snapshot"
	"github.com/pggit/pggit/store"
	"github.com/pggit/pggit/trinity"
)

// Server is a TCP server that exposes a pgGit engine instance.
type Server struct {
	listener   net.Listener
	instance   *pggit.Instance
	identity   core.Identity
	authConfig *AuthConfig
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewServer creates a new server with the given engine instance. All
// connections commit under the default identity.
func NewServer(instance *pggit.Instance, identity core.Identity) *Server {
	return &Server{
		instance: instance,
		identity: identity,
		done:     make(chan struct{}),
	}
}

// NewServerWithAuth creates a server that requires clients to authenticate
// before issuing requests. Commits carry the identity from the client's
// token claims.
func NewServerWithAuth(instance *pggit.Instance, authConfig *AuthConfig) *Server {
	return &Server{
		instance:   instance,
		authConfig: authConfig,
		done:       make(chan struct{}),
	}
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	log.Printf("pgGit server listening on %s", addr)

	go s.acceptLoop()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	log.Printf("Client connected: %s", conn.RemoteAddr())

	reader := bufio.NewReader(conn)
	state := &ConnectionState{}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// Read until newline (one request per line)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("Read error from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Handle special commands
		if strings.ToLower(line) == "quit" || strings.ToLower(line) == "exit" {
			log.Printf("Client disconnected: %s", conn.RemoteAddr())
			return
		}

		var response Response
		if strings.HasPrefix(strings.ToUpper(line), "AUTH ") {
			response = s.handleAuth(line, state)
		} else {
			response = s.execute(line, state)
		}

		data, err := EncodeResponse(response)
		if err != nil {
			log.Printf("Failed to encode response: %v", err)
			continue
		}

		_, err = conn.Write(data)
		if err != nil {
			log.Printf("Write error to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) execute(line string, state *ConnectionState) Response {
	identity := s.identity
	if s.authConfig != nil && s.authConfig.Enabled {
		if !state.IsAuthenticated() {
			return errorResponse("authentication required: send AUTH JWT <token>")
		}
		if !state.tokenExpiry.IsZero() && time.Now().After(state.tokenExpiry) {
			state.authenticated = false
			return errorResponse("authentication required: token expired")
		}
		identity = *state.Identity()
	}

	req, err := DecodeRequest([]byte(line))
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid request: %v", err))
	}

	ctx := context.Background()

	switch req.Op {
	case "commit":
		return s.handleCommit(ctx, req, identity)
	case "create_branch":
		return s.handleCreateBranch(ctx, req)
	case "delete_branch":
		return s.handleDeleteBranch(ctx, req)
	case "branches":
		return s.handleBranches(ctx)
	case "merge":
		return s.handleMerge(ctx, req, identity)
	case "history":
		return s.handleHistory(ctx, req)
	case "diff":
		return s.handleDiff(ctx, req)
	case "show":
		return s.handleShow(ctx, req)
	default:
		return errorResponse(fmt.Sprintf("unknown op: %q", req.Op))
	}
}

func (s *Server) handleCommit(ctx context.Context, req Request, identity core.Identity) Response {
	if req.Branch == "" {
		req.Branch = store.DefaultBranch
	}
	snap, err := snapshot.Decode(req.Snapshot)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid snapshot: %v", err))
	}

	commit, err := s.instance.Store.Commit(ctx, req.Branch, req.Message, snap, identity)
	if err != nil {
		return errorResponse(err.Error())
	}
	return resultResponse("commit", commitInfo(commit))
}

func (s *Server) handleCreateBranch(ctx context.Context, req Request) Response {
	from, err := trinity.Parse(req.From)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid from commit: %v", err))
	}

	branch, err := s.instance.Store.CreateBranch(ctx, req.Branch, from)
	if err != nil {
		return errorResponse(err.Error())
	}
	return resultResponse("branch", BranchInfo{Name: branch.Name, Head: branch.Head.String()})
}

func (s *Server) handleDeleteBranch(ctx context.Context, req Request) Response {
	if err := s.instance.Store.DeleteBranch(ctx, req.Branch); err != nil {
		return errorResponse(err.Error())
	}
	return resultResponse("branch", BranchInfo{Name: req.Branch})
}

func (s *Server) handleBranches(ctx context.Context) Response {
	names, err := s.instance.Store.Branches(ctx)
	if err != nil {
		return errorResponse(err.Error())
	}

	infos := make([]BranchInfo, 0, len(names))
	for _, name := range names {
		branch, err := s.instance.Store.GetBranch(ctx, name)
		if err != nil {
			return errorResponse(err.Error())
		}
		infos = append(infos, BranchInfo{Name: branch.Name, Head: branch.Head.String()})
	}
	return resultResponse("branches", infos)
}

func (s *Server) handleMerge(ctx context.Context, req Request, identity core.Identity) Response {
	opts := merge.Options{Message: req.Message}
	switch req.Strategy {
	case "", string(merge.StrategyManual):
		opts.Strategy = merge.StrategyManual
	case string(merge.StrategySourceWins):
		opts.Strategy = merge.StrategySourceWins
	case string(merge.StrategyTargetWins):
		opts.Strategy = merge.StrategyTargetWins
	case string(merge.StrategyLatestWins):
		opts.Strategy = merge.StrategyLatestWins
	default:
		return errorResponse(fmt.Sprintf("unknown merge strategy: %q", req.Strategy))
	}

	result, err := s.instance.Merger.Merge(ctx, req.Source, req.Target, identity, opts)
	if err != nil {
		return errorResponse(err.Error())
	}

	mr := MergeResponse{
		UpToDate:    result.UpToDate,
		FastForward: result.FastForward,
		Resolved:    len(result.Resolved),
	}
	if result.Commit != nil {
		info := commitInfo(*result.Commit)
		mr.Commit = &info
	}
	if result.Report != nil {
		for _, conflict := range result.Report.Conflicts {
			mr.Conflicts = append(mr.Conflicts, conflict.Key)
		}
	}
	return resultResponse("merge", mr)
}

func (s *Server) handleHistory(ctx context.Context, req Request) Response {
	branch, err := s.instance.Store.GetBranch(ctx, req.Branch)
	if err != nil {
		return errorResponse(err.Error())
	}

	var infos []CommitInfo
	for commit, err := range s.instance.Store.History(ctx, branch.Head) {
		if err != nil {
			return errorResponse(err.Error())
		}
		infos = append(infos, commitInfo(commit))
		if req.Limit > 0 && len(infos) >= req.Limit {
			break
		}
	}
	return resultResponse("history", infos)
}

func (s *Server) handleDiff(ctx context.Context, req Request) Response {
	a, err := trinity.Parse(req.A)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid commit a: %v", err))
	}
	b, err := trinity.Parse(req.B)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid commit b: %v", err))
	}

	changes, err := s.instance.Merger.Diff(ctx, a, b)
	if err != nil {
		return errorResponse(err.Error())
	}

	infos := make([]ChangeInfo, 0, len(changes))
	for _, change := range changes {
		infos = append(infos, ChangeInfo{Kind: change.Kind.String(), Key: change.Key})
	}
	return resultResponse("diff", infos)
}

func (s *Server) handleShow(ctx context.Context, req Request) Response {
	id, err := trinity.Parse(req.Commit)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid commit: %v", err))
	}

	commit, err := s.instance.Store.GetCommit(ctx, id)
	if err != nil {
		return errorResponse(err.Error())
	}
	return resultResponse("commit", commitInfo(commit))
}

func commitInfo(c store.Commit) CommitInfo {
	info := CommitInfo{
		ID:          c.ID.String(),
		Branch:      c.Branch,
		Message:     c.Message,
		Fingerprint: c.Fingerprint.String(),
		Author:      c.Author.String(),
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, parent := range c.Parents {
		info.Parents = append(info.Parents, parent.String())
	}
	return info
}

func errorResponse(msg string) Response {
	return Response{Success: false, Error: msg}
}

func resultResponse(typ string, result any) Response {
	data, _ := json.Marshal(result)
	return Response{Success: true, Type: typ, Result: data}
}
