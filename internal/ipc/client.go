package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Stop requests the daemon to stop processing and exit.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Groups lists groups optionally filtered by stage names.
func (c *Client) Groups(stages []string) (*GroupListResponse, error) {
	var resp GroupListResponse
	if err := c.call("Groups", GroupListRequest{Stages: stages}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Group returns one group.
func (c *Client) Group(id string) (*GroupResponse, error) {
	var resp GroupResponse
	if err := c.call("Group", GroupRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset clears a group's sticky error.
func (c *Client) Reset(id string) (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.call("Reset", GroupRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns journal entries for a group, or every group when id is empty.
func (c *Client) History(id string, limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{ID: id, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
