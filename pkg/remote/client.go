package remote

import (
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/fsm"
	"github.com/labrig-project/labrig/pkg/module"
)

// Client is a module.Transport implementation that dials a peer's Server
// and performs synchronous request/response round trips over one shared
// connection.
type Client struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	pending map[string]chan Response
}

// NewClient returns an unconnected Client. Call Dial before issuing any
// other request.
func NewClient() *Client {
	return &Client{pending: make(map[string]chan Response)}
}

// Dial opens the websocket connection, optionally over TLS when both
// certFile and keyFile are supplied.
func (c *Client) Dial(address string, port int, certFile, keyFile *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dialer := *websocket.DefaultDialer
	scheme := "ws"
	if certFile != nil && keyFile != nil {
		cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
		if err != nil {
			return &errkind.IOError{Path: *certFile, Err: err}
		}
		dialer.TLSClientConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		scheme = "wss"
	}

	url := fmt.Sprintf("%s://%s:%d/labrig/remote", scheme, address, port)
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return &errkind.RemoteError{Peer: address, Kind: "dial", Message: err.Error()}
	}
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

// Close terminates the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var resp Response
		if err := conn.ReadJSON(&resp); err != nil {
			c.mu.Lock()
			for _, ch := range c.pending {
				close(ch)
			}
			c.pending = make(map[string]chan Response)
			c.mu.Unlock()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) call(req Request) (Response, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return Response{}, &errkind.RemoteError{Kind: "not_connected", Message: "client is not dialed"}
	}
	id := atomic.AddInt64(&c.nextID, 1)
	req.ID = fmt.Sprintf("%d", id)
	ch := make(chan Response, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := conn.WriteJSON(req); err != nil {
		return Response{}, &errkind.RemoteError{Kind: "write", Message: err.Error()}
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, &errkind.RemoteError{Kind: "disconnected", Message: "connection closed before response arrived"}
		}
		if !resp.OK {
			return Response{}, &errkind.RemoteError{Kind: resp.ErrorKind, Message: resp.ErrorMessage}
		}
		return resp, nil
	case <-time.After(30 * time.Second):
		return Response{}, errkind.Timeout
	}
}

// ListModules is not part of module.Transport — it is a labrigctl-only
// operation with no per-module instance behind it.
func (c *Client) ListModules() ([]ModuleSummary, error) {
	resp, err := c.call(Request{Op: OpListModules})
	if err != nil {
		return nil, err
	}
	return resp.Modules, nil
}

// ListThreads, RunTask, TaskStatus, and InterruptTask, along with
// ConfigYAML and ValidateConfig below, are labrigctl-only operations: they
// have no module.Transport counterpart since they are not per-module.

func (c *Client) ListThreads() ([]ThreadSummary, error) {
	resp, err := c.call(Request{Op: OpListThreads})
	if err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

func (c *Client) RunTask(name string) error {
	_, err := c.call(Request{Op: OpTaskRun, NativeName: name})
	return err
}

func (c *Client) TaskStatus(name string) (string, error) {
	resp, err := c.call(Request{Op: OpTaskStatus, NativeName: name})
	if err != nil {
		return "", err
	}
	return resp.State, nil
}

func (c *Client) InterruptTask(name string) error {
	_, err := c.call(Request{Op: OpTaskInterrupt, NativeName: name})
	return err
}

func (c *Client) ConfigYAML() (string, error) {
	resp, err := c.call(Request{Op: OpConfigShow})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) ValidateConfig() error {
	_, err := c.call(Request{Op: OpConfigValidate})
	return err
}

func (c *Client) ActivateModule(nativeName string) error {
	_, err := c.call(Request{Op: OpActivateModule, NativeName: nativeName})
	return err
}

func (c *Client) DeactivateModule(nativeName string) error {
	_, err := c.call(Request{Op: OpDeactivateModule, NativeName: nativeName})
	return err
}

func (c *Client) ModuleState(nativeName string) (fsm.State, error) {
	resp, err := c.call(Request{Op: OpModuleState, NativeName: nativeName})
	if err != nil {
		return fsm.Deactivated, err
	}
	state, ok := fsm.ParseState(resp.State)
	if !ok {
		return fsm.Deactivated, &errkind.RemoteError{Kind: "bad_state", Message: resp.State}
	}
	return state, nil
}

func (c *Client) ModuleInfo(nativeName string) (ModuleInfo, error) {
	resp, err := c.call(Request{Op: OpModuleInfo, NativeName: nativeName})
	if err != nil {
		return ModuleInfo{}, err
	}
	if resp.Info == nil {
		return ModuleInfo{}, &errkind.RemoteError{Kind: "empty_info", Message: nativeName}
	}
	return *resp.Info, nil
}

func (c *Client) HasAppdata(nativeName string) (bool, error) {
	resp, err := c.call(Request{Op: OpHasAppdata, NativeName: nativeName})
	if err != nil {
		return false, err
	}
	if resp.Value == nil {
		return false, nil
	}
	return resp.Value.Scalar.Bool, nil
}

func (c *Client) ClearAppdata(nativeName string) error {
	_, err := c.call(Request{Op: OpClearAppdata, NativeName: nativeName})
	return err
}

func (c *Client) GetAttribute(nativeName, attr string) (module.RemoteValue, error) {
	resp, err := c.call(Request{Op: OpGetAttribute, NativeName: nativeName, Attr: attr})
	if err != nil {
		return module.RemoteValue{}, err
	}
	if resp.Value == nil {
		return module.RemoteValue{}, &errkind.RemoteError{Kind: "empty_value", Message: attr}
	}
	return *resp.Value, nil
}

func (c *Client) SetAttribute(nativeName, attr string, value module.RemoteValue) error {
	_, err := c.call(Request{Op: OpSetAttribute, NativeName: nativeName, Attr: attr, Value: &value})
	return err
}

func (c *Client) DelAttribute(nativeName, attr string) error {
	_, err := c.call(Request{Op: OpDelAttribute, NativeName: nativeName, Attr: attr})
	return err
}

func (c *Client) Call(nativeName, method string, args []module.RemoteValue) (module.RemoteValue, error) {
	resp, err := c.call(Request{Op: OpCallMethod, NativeName: nativeName, Method: method, Args: args})
	if err != nil {
		return module.RemoteValue{}, err
	}
	if resp.Value == nil {
		return module.RemoteValue{}, nil
	}
	return *resp.Value, nil
}

var _ module.Transport = (*Client)(nil)
