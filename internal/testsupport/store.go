package testsupport

import (
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/state"
)

// MustOpenStore opens the state store under the config's storage root.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...state.Option) *state.Store {
	t.Helper()

	store, err := state.Open(cfg.Paths.StorageDir, opts...)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	return store
}

// NewGroup records a group whose segments are back to back from start, each
// length long. The first segment names the group.
func NewGroup(t testing.TB, store *state.Store, start time.Time, length time.Duration, count int) state.Group {
	t.Helper()

	if count < 1 {
		count = 1
	}
	id := state.GroupID(start)
	var group state.Group
	for i := 0; i < count; i++ {
		segStart := start.Add(time.Duration(i) * length)
		seg := state.Segment{
			Name:  segStart.Format("2006-01-02") + "/" + segStart.Format("15.04.05") + "-" + segStart.Add(length).Format("15.04.05") + ".dav",
			File:  segStart.Format("15.04.05") + "-" + segStart.Add(length).Format("15.04.05") + ".mp4",
			Start: segStart,
			End:   segStart.Add(length),
			State: state.SegmentPending,
		}
		var err error
		if i == 0 {
			group, err = store.Create(id, seg)
		} else {
			group, err = store.Update(id, func(g *state.Group) error {
				g.Segments = append(g.Segments, seg)
				return nil
			})
		}
		if err != nil {
			t.Fatalf("record segment %s: %v", seg.Name, err)
		}
	}
	return group
}
