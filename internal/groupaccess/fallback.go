package groupaccess

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mblakley/soccer-cam/internal/api"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/ipc"
	"github.com/mblakley/soccer-cam/internal/journal"
	"github.com/mblakley/soccer-cam/internal/state"
)

// Session represents a group access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to reading
// the store and journal directly.
func OpenWithFallback(dial func() (*ipc.Client, error), openStore func() (*state.Store, error), openJournal func() (*journal.Journal, error)) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open state store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open state store: %w", err)
	}

	var (
		history api.HistoryReader
		closeFn func() error
	)
	if openJournal != nil {
		j, err := openJournal()
		if err != nil {
			return Session{}, fmt.Errorf("open journal: %w", err)
		}
		if j != nil {
			history = j
			closeFn = j.Close
		}
	}
	return Session{
		Access: NewServiceAccess(api.NewGroupService(store, history, nil)),
		close:  closeFn,
	}, nil
}

// Open connects to socketPath, or to the socket named by cfg when socketPath
// is empty, and opens the store and journal under the storage directory when
// the daemon is not running. A missing journal is not an error; history is
// then empty.
func Open(cfg *config.Config, socketPath string) (Session, error) {
	if strings.TrimSpace(socketPath) == "" {
		socketPath = cfg.SocketPath()
	}
	return OpenWithFallback(
		func() (*ipc.Client, error) { return ipc.Dial(socketPath) },
		func() (*state.Store, error) { return state.Open(cfg.Paths.StorageDir) },
		func() (*journal.Journal, error) {
			if _, err := os.Stat(cfg.JournalPath()); errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return journal.Open(cfg.JournalPath())
		},
	)
}
