package ctl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// Client is one connection to a control port. Calls are synchronous;
// events arriving between responses are handed to the event callback.
type Client struct {
	conn    net.Conn
	nextID  int64
	onEvent func(event string, params json.RawMessage)

	mu      sync.Mutex
	pending map[int64]chan *Response

	readErr  error
	readDone chan struct{}
}

// Dial connects to a control socket. onEvent may be nil for ports that
// push no events.
func Dial(filename string, onEvent func(event string, params json.RawMessage)) (*Client, error) {
	conn, err := net.Dial("unix", filename)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:     conn,
		onEvent:  onEvent,
		pending:  make(map[int64]chan *Response),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close hangs up. Pending calls fail.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.readDone
	return err
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	s := bufio.NewScanner(c.conn)
	s.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for s.Scan() {
		var resp struct {
			Response
			Params json.RawMessage `json:"params,omitempty"`
		}
		if err := json.Unmarshal(s.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Event != "" {
			if c.onEvent != nil {
				c.onEvent(resp.Event, resp.Params)
			}
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp.Response
		}
	}

	// Fail whatever is still waiting.
	c.mu.Lock()
	c.readErr = s.Err()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.mu.Unlock()
}

// Call performs one request and decodes the result into result (which
// may be nil). A non-empty error string in the response becomes an
// error.
func (c *Client) Call(method string, params, result interface{}) error {
	id := atomic.AddInt64(&c.nextID, 1)
	req := Request{ID: id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = b
	}
	b, err := json.Marshal(&req)
	if err != nil {
		return err
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if _, err := fmt.Fprintln(c.conn, string(b)); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	resp, ok := <-ch
	if !ok {
		return fmt.Errorf("connection closed: %v", c.readErr)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	if result != nil && len(resp.Result) > 0 {
		return json.Unmarshal(resp.Result, result)
	}
	return nil
}
