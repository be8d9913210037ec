package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpaca-gate/internal/models"
)

// tickServer is a minimal feed endpoint: it records subscriptions and
// pushes whatever messages the test hands it.
type tickServer struct {
	upgrader websocket.Upgrader
	messages chan interface{}
	subs     chan []string
}

func newTickServer() *tickServer {
	return &tickServer{
		messages: make(chan interface{}, 16),
		subs:     make(chan []string, 4),
	}
}

func (s *tickServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	go func() {
		for {
			var msg struct {
				Op   string   `json:"op"`
				Args []string `json:"args"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Op == "subscribe" {
				s.subs <- msg.Args
			}
		}
	}()

	for msg := range s.messages {
		data, _ := json.Marshal(msg)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSFeed_DeliversTicksInOrder(t *testing.T) {
	srv := newTickServer()
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer httpSrv.Close()

	feed := NewWSFeed(wsURL(httpSrv), zerolog.Nop())
	ticks := make(chan models.Tick, 16)
	feed.OnTick(func(tick models.Tick) { ticks <- tick })

	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Close()
	require.NoError(t, feed.Subscribe([]string{"AAPL"}))

	select {
	case subs := <-srv.subs:
		assert.Equal(t, []string{"AAPL"}, subs)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe message never arrived")
	}

	srv.messages <- map[string]interface{}{"symbol": "AAPL", "price": 180.5, "seq": 1, "ts": 1756400000000}
	srv.messages <- map[string]interface{}{"symbol": "AAPL", "price": 181.0, "seq": 2}

	first := waitTick(t, ticks)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, 180.5, first.Price)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, int64(1756400000000), first.Timestamp.UnixMilli())

	second := waitTick(t, ticks)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestWSFeed_AssignsFallbackSequence(t *testing.T) {
	srv := newTickServer()
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer httpSrv.Close()

	feed := NewWSFeed(wsURL(httpSrv), zerolog.Nop())
	ticks := make(chan models.Tick, 16)
	feed.OnTick(func(tick models.Tick) { ticks <- tick })

	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Close()

	// No seq on the wire: the feed numbers ticks per symbol itself.
	srv.messages <- map[string]interface{}{"symbol": "MSFT", "price": 300.0}
	srv.messages <- map[string]interface{}{"symbol": "MSFT", "price": 301.0}

	assert.Equal(t, uint64(1), waitTick(t, ticks).Seq)
	assert.Equal(t, uint64(2), waitTick(t, ticks).Seq)
}

func TestWSFeed_DropsMalformedMessages(t *testing.T) {
	srv := newTickServer()
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer httpSrv.Close()

	feed := NewWSFeed(wsURL(httpSrv), zerolog.Nop())
	ticks := make(chan models.Tick, 16)
	feed.OnTick(func(tick models.Tick) { ticks <- tick })

	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Close()

	srv.messages <- map[string]interface{}{"symbol": "", "price": 100.0}  // no symbol
	srv.messages <- map[string]interface{}{"symbol": "AAPL", "price": -1} // bad price
	srv.messages <- map[string]interface{}{"symbol": "AAPL", "price": 100.0, "seq": 9}

	tick := waitTick(t, ticks)
	assert.Equal(t, uint64(9), tick.Seq, "only the valid message survives")
	assert.Empty(t, ticks)
}

func TestWSFeed_ErrorHandlerOnServerClose(t *testing.T) {
	srv := newTickServer()
	httpSrv := httptest.NewServer(http.HandlerFunc(srv.handler))

	feed := NewWSFeed(wsURL(httpSrv), zerolog.Nop())
	errs := make(chan error, 1)
	feed.OnError(func(err error) { errs <- err })

	require.NoError(t, feed.Connect(context.Background()))
	defer feed.Close()

	close(srv.messages)
	httpSrv.Close()

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("error handler never fired")
	}
}

func TestWSFeed_ConnectFailure(t *testing.T) {
	feed := NewWSFeed("ws://127.0.0.1:1/feed", zerolog.Nop())
	err := feed.Connect(context.Background())
	assert.Error(t, err)
}

func waitTick(t *testing.T, ticks chan models.Tick) models.Tick {
	t.Helper()
	select {
	case tick := <-ticks:
		return tick
	case <-time.After(2 * time.Second):
		t.Fatal("tick never arrived")
		return models.Tick{}
	}
}
