package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/btr-supply/chomp/internal/model"
)

func newEchoWSServer(t *testing.T, payload string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv
}

func TestWSAPIFetcherReadsLatestMessage(t *testing.T) {
	srv := newEchoWSServer(t, `{"price": 9.9}`)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	f := NewWSAPIFetcher()
	defer f.Close()
	ing := &model.Ingester{Fields: []*model.Field{
		{Name: "price", Target: wsURL, Selector: "price"},
	}}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, f.Fetch(context.Background(), ing))
		if !ing.Fields[0].IsMissing() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 9.9, ing.Fields[0].Value)
}

func TestWSAPIFetcherSkipsFieldsWithoutTarget(t *testing.T) {
	f := NewWSAPIFetcher()
	defer f.Close()
	ing := &model.Ingester{Fields: []*model.Field{{Name: "static"}}}
	require.NoError(t, f.Fetch(context.Background(), ing))
	require.Nil(t, ing.Fields[0].Value)
}
