package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/btr-supply/chomp/internal/model"
)

// WSAPIFetcher maintains a persistent connection per distinct Target and
// sets each field from the most recent message received on that socket:
// the whole message, or the value at the field's Selector path. Only the
// latest message is kept; field Handler and Reducer expressions are not
// evaluated here.
type WSAPIFetcher struct {
	mu    sync.Mutex
	conns map[string]*wsConn
}

type wsConn struct {
	conn   *websocket.Conn
	latest gjson.Result
	mu     sync.RWMutex
}

// NewWSAPIFetcher builds a fetcher with its own connection pool, one
// socket per distinct Target across every field that references it.
func NewWSAPIFetcher() *WSAPIFetcher {
	return &WSAPIFetcher{conns: map[string]*wsConn{}}
}

func (f *WSAPIFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		c, err := f.connFor(ctx, field.Target)
		if err != nil {
			return fmt.Errorf("ws_api: connect %s: %w", field.Target, err)
		}
		c.mu.RLock()
		msg := c.latest
		c.mu.RUnlock()
		if !msg.Exists() {
			continue
		}
		if field.Selector != "" {
			field.Value = msg.Get(field.Selector).Value()
		} else {
			field.Value = msg.Value()
		}
	}
	return nil
}

func (f *WSAPIFetcher) connFor(ctx context.Context, target string) (*wsConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.conns[target]; ok {
		return c, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	c := &wsConn{conn: conn}
	f.conns[target] = c
	go f.readLoop(c)
	return c, nil
}

func (f *WSAPIFetcher) readLoop(c *wsConn) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		parsed := gjson.ParseBytes(data)
		c.mu.Lock()
		c.latest = parsed
		c.mu.Unlock()
	}
}

// Close tears down every open socket, called on worker shutdown.
func (f *WSAPIFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.conn.Close()
	}
}
