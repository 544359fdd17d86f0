package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mblakley/soccer-cam/internal/fileutil"
	"github.com/mblakley/soccer-cam/internal/services"
)

// File names inside a group directory.
const (
	StateFileName     = "state.json"
	CompletedMarker   = ".completed"
	CombinedMarker    = ".combined"
	CombinedFileName  = "combined.mp4"
	latestVideoFile   = "latest_video.txt"
	latestVideoLayout = "2006-01-02 15:04:05"
)

var (
	// ErrGroupExists is returned when creating a group whose ID is taken.
	ErrGroupExists = errors.New("group already exists")
	// ErrInvalidTransition rejects updates that would break lifecycle rules.
	ErrInvalidTransition = errors.New("invalid group transition")
)

// Store persists recording groups as one state.json per group directory and
// mirrors them in memory. It is the single owner of group records; every
// mutation goes through Update so the on-disk and in-memory views never
// diverge.
type Store struct {
	root string
	now  func() time.Time

	observers []Observer

	mu     sync.RWMutex
	groups map[string]*Group
	index  map[string]string
}

// Observer is told about every persisted change. before is the zero Group
// for a newly created record. Observers run after the store lock is released
// and must not block.
type Observer func(before, after Group)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithObserver registers fn to receive every persisted change.
func WithObserver(fn Observer) Option {
	return func(s *Store) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// Open loads every group under root. Segments left mid-transfer by a crash
// return to pending so the next tick retries them.
func Open(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("state store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	s := &Store{
		root:   root,
		now:    time.Now,
		groups: make(map[string]*Group),
		index:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("read storage root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.root, entry.Name(), StateFileName)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		var group Group
		if err := json.Unmarshal(data, &group); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if group.ID == "" {
			group.ID = entry.Name()
		}
		if !group.Stage.Valid() {
			return fmt.Errorf("decode %s: %w", path, fmt.Errorf("unknown stage %q", group.Stage))
		}
		for i := range group.Segments {
			if group.Segments[i].State == SegmentDownloading {
				group.Segments[i].State = SegmentPending
			}
		}
		group.sortSegments()
		s.groups[group.ID] = &group
		for _, seg := range group.Segments {
			s.index[seg.Name] = group.ID
		}
	}
	return nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// GroupDir returns the directory holding a group's files.
func (s *Store) GroupDir(id string) string {
	return filepath.Join(s.root, id)
}

// SegmentPath returns the local path of a group's segment file.
func (s *Store) SegmentPath(id string, seg Segment) string {
	return filepath.Join(s.root, id, seg.File)
}

// Get returns a copy of the group.
func (s *Store) Get(id string) (Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[id]
	if !ok {
		return Group{}, false
	}
	return group.Clone(), true
}

// List returns copies of all groups ordered by ID, which is chronological.
func (s *Store) List() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Group, 0, len(s.groups))
	for _, group := range s.groups {
		out = append(out, group.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GroupForSegment reports which group owns a segment name.
func (s *Store) GroupForSegment(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.index[name]
	return id, ok
}

// Create persists a new group seeded with its first segment.
func (s *Store) Create(id string, first Segment) (Group, error) {
	created, err := s.create(id, first)
	if err != nil {
		return Group{}, err
	}
	s.notify(Group{}, created)
	return created, nil
}

func (s *Store) create(id string, first Segment) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[id]; exists {
		return Group{}, fmt.Errorf("%w: %s", ErrGroupExists, id)
	}
	if owner, ok := s.index[first.Name]; ok {
		return Group{}, fmt.Errorf("%w: segment %s already belongs to %s", ErrInvalidTransition, first.Name, owner)
	}
	now := s.now()
	if first.State == "" {
		first.State = SegmentPending
	}
	group := Group{
		Version:   schemaVersion,
		ID:        id,
		Stage:     StageDiscovering,
		Segments:  []Segment{first},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := os.MkdirAll(s.GroupDir(id), 0o755); err != nil {
		return Group{}, services.Wrap(services.ErrTransientIO, "state", "create", "group directory", err)
	}
	if err := s.persist(&group); err != nil {
		return Group{}, err
	}
	s.groups[id] = &group
	s.index[first.Name] = id
	return group.Clone(), nil
}

// Update applies fn to a copy of the group, validates the result, writes it
// atomically, and only then publishes it in memory. A failed write leaves the
// previous record in place.
func (s *Store) Update(id string, fn func(*Group) error) (Group, error) {
	return s.update(id, fn, false)
}

// ResetError clears a sticky error so the group resumes from the stage it
// failed in. Retry counters restart from zero.
func (s *Store) ResetError(id string) (Group, error) {
	return s.update(id, func(g *Group) error {
		if g.Error == nil {
			return fmt.Errorf("%w: group %s has no error to reset", services.ErrValidation, id)
		}
		g.Stage = g.Error.Stage
		g.Error = nil
		g.CombineAttempts = 0
		g.TrimAttempts = 0
		g.NextAttemptAt = time.Time{}
		for i := range g.Segments {
			if g.Segments[i].State == SegmentFailed {
				g.Segments[i].State = SegmentPending
				g.Segments[i].Failures = 0
			}
		}
		return nil
	}, true)
}

func (s *Store) update(id string, fn func(*Group) error, allowReset bool) (Group, error) {
	before, after, err := s.apply(id, fn, allowReset)
	if err != nil {
		return Group{}, err
	}
	s.notify(before, after)
	return after, nil
}

func (s *Store) apply(id string, fn func(*Group) error, allowReset bool) (Group, Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.groups[id]
	if !ok {
		return Group{}, Group{}, fmt.Errorf("%w: group %s", services.ErrNotFound, id)
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return Group{}, Group{}, err
	}
	next.sortSegments()
	if err := validateTransition(*current, next, allowReset); err != nil {
		return Group{}, Group{}, err
	}
	next.Version = schemaVersion
	next.UpdatedAt = s.now()
	if err := s.persist(&next); err != nil {
		return Group{}, Group{}, err
	}
	before := current.Clone()
	s.groups[id] = &next
	for _, seg := range next.Segments {
		s.index[seg.Name] = id
	}
	return before, next.Clone(), nil
}

func (s *Store) notify(before, after Group) {
	for _, fn := range s.observers {
		fn(before, after.Clone())
	}
}

func validateTransition(before, after Group, allowReset bool) error {
	if after.ID != before.ID {
		return fmt.Errorf("%w: id changed from %s to %s", ErrInvalidTransition, before.ID, after.ID)
	}
	if before.Error != nil && !allowReset {
		if after.Error == nil || *after.Error != *before.Error || after.Stage != before.Stage {
			return fmt.Errorf("%w: group %s is in %s", ErrInvalidTransition, before.ID, before.Error)
		}
	}
	if !allowReset && !before.Stage.CanAdvanceTo(after.Stage) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.Stage, after.Stage)
	}
	if before.Closed && !after.Closed {
		return fmt.Errorf("%w: group %s cannot reopen", ErrInvalidTransition, before.ID)
	}
	seen := make(map[string]struct{}, len(after.Segments))
	for i, seg := range after.Segments {
		if _, dup := seen[seg.Name]; dup {
			return fmt.Errorf("%w: duplicate segment %s", ErrInvalidTransition, seg.Name)
		}
		seen[seg.Name] = struct{}{}
		if i > 0 && !seg.Start.After(after.Segments[i-1].Start) {
			return fmt.Errorf("%w: segment %s does not start after %s", ErrInvalidTransition, seg.Name, after.Segments[i-1].Name)
		}
	}
	for _, seg := range before.Segments {
		if seg.State != SegmentDownloaded {
			continue
		}
		idx := after.SegmentIndex(seg.Name)
		if idx < 0 || after.Segments[idx].State != SegmentDownloaded {
			return fmt.Errorf("%w: downloaded segment %s cannot be dropped", ErrInvalidTransition, seg.Name)
		}
	}
	return nil
}

func (s *Store) persist(group *Group) error {
	data, err := json.MarshalIndent(group, "", "  ")
	if err != nil {
		return fmt.Errorf("encode group %s: %w", group.ID, err)
	}
	path := filepath.Join(s.GroupDir(group.ID), StateFileName)
	if err := fileutil.WriteAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrTransientIO, "state", "persist", group.ID, err)
	}
	return nil
}

// WriteMarker records a marker file whose payload is the RFC 3339 timestamp.
func (s *Store) WriteMarker(id, marker string, at time.Time) error {
	path := filepath.Join(s.GroupDir(id), marker)
	payload := []byte(at.UTC().Format(time.RFC3339) + "\n")
	if err := fileutil.WriteAtomic(path, payload, 0o644); err != nil {
		return services.Wrap(services.ErrTransientIO, "state", "marker", marker, err)
	}
	return nil
}

// MarkerTime returns when a marker was written, if it exists.
func (s *Store) MarkerTime(id, marker string) (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(s.GroupDir(id), marker))
	if err != nil {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, true
	}
	return at, true
}

// IsCompleted reports whether the group's completion marker exists.
func (s *Store) IsCompleted(id string) bool {
	_, ok := s.MarkerTime(id, CompletedMarker)
	return ok
}

// LatestVideo returns the end of the newest downloaded segment recorded so far.
func (s *Store) LatestVideo() (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(s.root, latestVideoFile))
	if err != nil {
		return time.Time{}, false
	}
	at, err := time.ParseInLocation(latestVideoLayout, strings.TrimSpace(string(data)), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// AdvanceLatestVideo moves the high-water mark forward; earlier values are
// ignored.
func (s *Store) AdvanceLatestVideo(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.LatestVideo(); ok && !at.After(current) {
		return nil
	}
	payload := []byte(at.In(time.Local).Format(latestVideoLayout) + "\n")
	if err := fileutil.WriteAtomic(filepath.Join(s.root, latestVideoFile), payload, 0o644); err != nil {
		return services.Wrap(services.ErrTransientIO, "state", "latest video", "", err)
	}
	return nil
}
