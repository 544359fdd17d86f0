package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mblakley/soccer-cam/internal/boundary"
	"github.com/mblakley/soccer-cam/internal/journal"
	"github.com/mblakley/soccer-cam/internal/services"
	"github.com/mblakley/soccer-cam/internal/state"
)

// ErrGroupNotFound is returned when an ID matches no group.
var ErrGroupNotFound = errors.New("group not found")

// GroupStore abstracts the state store interactions the API needs.
type GroupStore interface {
	List() []state.Group
	Get(id string) (state.Group, bool)
	ResetError(id string) (state.Group, error)
}

// HistoryReader reads journal transitions.
type HistoryReader interface {
	History(ctx context.Context, groupID string, limit int) ([]journal.Entry, error)
}

// CandidateSource reports outstanding boundary questions.
type CandidateSource interface {
	Candidates(id string) []boundary.Candidate
	Forget(id string)
}

// GroupService exposes group queries and the manual reset, returning API
// DTOs. The history and candidate sources are optional.
type GroupService struct {
	store      GroupStore
	history    HistoryReader
	candidates CandidateSource
}

// NewGroupService constructs a GroupService around the provided store.
func NewGroupService(store GroupStore, history HistoryReader, candidates CandidateSource) *GroupService {
	if store == nil {
		return nil
	}
	return &GroupService{store: store, history: history, candidates: candidates}
}

// List returns groups in ID order, optionally filtered by stage. Failed
// groups match the stage they failed in.
func (s *GroupService) List(_ context.Context, stages ...state.Stage) ([]Group, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	groups := s.store.List()
	if len(stages) == 0 {
		return FromGroups(groups), nil
	}
	wanted := make(map[state.Stage]struct{}, len(stages))
	for _, st := range stages {
		wanted[st] = struct{}{}
	}
	filtered := groups[:0]
	for _, g := range groups {
		if _, ok := wanted[g.Stage]; ok {
			filtered = append(filtered, g)
		}
	}
	return FromGroups(filtered), nil
}

// Describe fetches a single group with its open boundary questions.
func (s *GroupService) Describe(_ context.Context, id string) (*GroupResponse, error) {
	if s == nil || s.store == nil {
		return nil, ErrGroupNotFound
	}
	g, ok := s.store.Get(strings.TrimSpace(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	resp := &GroupResponse{Group: FromGroup(g)}
	if s.candidates != nil {
		resp.Candidates = FromCandidates(s.candidates.Candidates(g.ID))
	}
	return resp, nil
}

// Reset clears a group's sticky error so it resumes from the failed stage.
// Any in-memory boundary search is dropped so the questions start over.
func (s *GroupService) Reset(_ context.Context, id string) (*ResetResponse, error) {
	if s == nil || s.store == nil {
		return nil, ErrGroupNotFound
	}
	id = strings.TrimSpace(id)
	g, err := s.store.ResetError(id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
		}
		return nil, err
	}
	if s.candidates != nil {
		s.candidates.Forget(id)
	}
	return &ResetResponse{Group: FromGroup(g)}, nil
}

// History returns the group's journal, oldest first. An empty id returns
// recent transitions across every group.
func (s *GroupService) History(ctx context.Context, id string, limit int) (*HistoryResponse, error) {
	if s == nil || s.history == nil {
		return &HistoryResponse{}, nil
	}
	entries, err := s.history.History(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return &HistoryResponse{Entries: FromHistory(entries)}, nil
}
