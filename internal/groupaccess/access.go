// Package groupaccess gives the CLI one view of recording groups whether the
// daemon is running or not.
package groupaccess

import (
	"context"

	"github.com/mblakley/soccer-cam/internal/api"
	"github.com/mblakley/soccer-cam/internal/ipc"
)

// Access provides group operations regardless of IPC or direct store backing.
type Access interface {
	List(ctx context.Context, stages []string) ([]api.Group, error)
	Describe(ctx context.Context, id string) (*api.GroupResponse, error)
	Reset(ctx context.Context, id string) (*api.ResetResponse, error)
	History(ctx context.Context, id string, limit int) ([]api.HistoryEntry, error)
	// Live reports whether calls go through the running daemon.
	Live() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewServiceAccess returns an Access backed by a GroupService over the
// on-disk store.
func NewServiceAccess(service *api.GroupService) Access {
	return &serviceAccess{service: service}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Live() bool { return true }

func (a *ipcAccess) List(_ context.Context, stages []string) ([]api.Group, error) {
	resp, err := a.client.Groups(stages)
	if err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

func (a *ipcAccess) Describe(_ context.Context, id string) (*api.GroupResponse, error) {
	return a.client.Group(id)
}

func (a *ipcAccess) Reset(_ context.Context, id string) (*api.ResetResponse, error) {
	return a.client.Reset(id)
}

func (a *ipcAccess) History(_ context.Context, id string, limit int) ([]api.HistoryEntry, error) {
	resp, err := a.client.History(id, limit)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

type serviceAccess struct {
	service *api.GroupService
}

func (a *serviceAccess) Live() bool { return false }

func (a *serviceAccess) List(ctx context.Context, stages []string) ([]api.Group, error) {
	filters, err := api.ParseStages(stages)
	if err != nil {
		return nil, err
	}
	return a.service.List(ctx, filters...)
}

func (a *serviceAccess) Describe(ctx context.Context, id string) (*api.GroupResponse, error) {
	return a.service.Describe(ctx, id)
}

func (a *serviceAccess) Reset(ctx context.Context, id string) (*api.ResetResponse, error) {
	return a.service.Reset(ctx, id)
}

func (a *serviceAccess) History(ctx context.Context, id string, limit int) ([]api.HistoryEntry, error) {
	resp, err := a.service.History(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}
