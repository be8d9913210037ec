package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	apperrors "alpaca-gate/internal/errors"
	"alpaca-gate/internal/models"
)

// wsMessage is the wire format for tick updates.
type wsMessage struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Seq       uint64  `json:"seq"`
	Timestamp int64   `json:"ts"` // unix milliseconds
}

// WSFeed implements TickFeed over a websocket connection.
type WSFeed struct {
	url    string
	logger zerolog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	subscribed   []string
	tickHandlers []func(models.Tick)
	errHandlers  []func(error)
	closed       bool

	// Fallback sequence numbers for feeds that do not supply them.
	seqs map[string]uint64
}

// NewWSFeed creates a websocket tick feed for the given URL.
func NewWSFeed(url string, logger zerolog.Logger) *WSFeed {
	return &WSFeed{
		url:    url,
		logger: logger,
		seqs:   make(map[string]uint64),
	}
}

// OnTick registers a tick handler. Handlers run on the read loop
// goroutine, so ticks for one connection are delivered in arrival order.
func (f *WSFeed) OnTick(handler func(models.Tick)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickHandlers = append(f.tickHandlers, handler)
}

// OnError registers an error handler.
func (f *WSFeed) OnError(handler func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errHandlers = append(f.errHandlers, handler)
}

// Connect dials the feed and starts the read loop.
func (f *WSFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		return nil
	}

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConnectionFailed, err.Error())
	}
	f.conn = conn

	go f.readLoop(conn)

	if len(f.subscribed) > 0 {
		return f.sendSubscribe(f.subscribed)
	}
	return nil
}

// Subscribe subscribes to tick updates for the given symbols.
func (f *WSFeed) Subscribe(symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribed = append(f.subscribed, symbols...)
	if f.conn == nil {
		// Connect will replay the subscription.
		return nil
	}
	return f.sendSubscribe(symbols)
}

// sendSubscribe writes the subscription message. Caller holds the lock.
func (f *WSFeed) sendSubscribe(symbols []string) error {
	msg := map[string]interface{}{
		"op":   "subscribe",
		"args": symbols,
	}
	return f.conn.WriteJSON(msg)
}

func (f *WSFeed) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			closed := f.closed
			handlers := append([]func(error){}, f.errHandlers...)
			f.mu.Unlock()

			if !closed {
				for _, h := range handlers {
					h(apperrors.Wrap(apperrors.ErrFeedClosed, err.Error()))
				}
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			f.logger.Debug().Err(err).Msg("Discarding malformed feed message")
			continue
		}
		if msg.Symbol == "" || msg.Price <= 0 {
			continue
		}

		f.mu.Lock()
		seq := msg.Seq
		if seq == 0 {
			f.seqs[msg.Symbol]++
			seq = f.seqs[msg.Symbol]
		} else {
			f.seqs[msg.Symbol] = seq
		}
		handlers := append([]func(models.Tick){}, f.tickHandlers...)
		f.mu.Unlock()

		ts := time.Now().UTC()
		if msg.Timestamp > 0 {
			ts = time.UnixMilli(msg.Timestamp).UTC()
		}

		tick := models.Tick{
			Symbol:    msg.Symbol,
			Price:     msg.Price,
			Seq:       seq,
			Timestamp: ts,
		}
		for _, h := range handlers {
			h(tick)
		}
	}
}

// Close shuts the feed down.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}

var _ TickFeed = (*WSFeed)(nil)
