package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// rpcClient speaks the DevTools JSON-RPC dialect over a websocket. Calls
// are serialized; unsolicited events arriving between a call and its
// response are discarded.
type rpcClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	nextID atomic.Int64
}

type rpcRequest struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func dialRPC(ctx context.Context, wsURL string) (*rpcClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("devtools dial %s: %w", wsURL, err)
	}
	return &rpcClient{conn: conn}, nil
}

// call issues one method and blocks until its response or the context
// deadline.
func (c *rpcClient) call(ctx context.Context, method string, params, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID.Add(1)
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		c.conn.SetReadDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	}

	if err := c.conn.WriteJSON(rpcRequest{ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("devtools write %s: %w", method, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("devtools read %s: %w", method, err)
		}
		if resp.Method != "" || resp.ID != id {
			// Event or stale response; skip.
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("devtools %s: %s (%d)", method, resp.Error.Message, resp.Error.Code)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("devtools %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *rpcClient) close() error {
	return c.conn.Close()
}
