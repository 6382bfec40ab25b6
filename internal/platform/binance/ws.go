package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 3 * time.Minute

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second
)

// KlineHandler is called for each closed kline received on the stream.
type KlineHandler func(symbol string, k Kline)

// WSClient is a WebSocket client for the Binance kline streams.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Tracked subscriptions for reconnection.
	subscribedStreams []string
	cmdID             int64

	klineHandlers []KlineHandler
	handlerMu     sync.RWMutex

	// done is closed when the client shuts down.
	done chan struct{}
}

// NewWSClient creates a new Binance WebSocket client.
//
// wsURL is the stream endpoint, e.g. "wss://stream.binance.com:9443/ws".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("binance/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// Binance pings the client; answer or it drops the connection.
	w.conn.SetPingHandler(func(appData string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		w.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return w.conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	go w.readLoop()
	go w.pingLoop()

	// Re-subscribe to any previously tracked streams.
	if len(w.subscribedStreams) > 0 {
		if err := w.sendSubscribe(w.subscribedStreams); err != nil {
			return fmt.Errorf("binance/ws: restore subscriptions: %w", err)
		}
	}

	return nil
}

// SubscribeKlines subscribes to the kline stream for each symbol at the
// given interval.
func (w *WSClient) SubscribeKlines(ctx context.Context, symbols []string, interval string) error {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams,
			strings.ToLower(normalizeSymbol(s))+"@kline_"+interval)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("binance/ws: not connected")
	}

	if err := w.sendSubscribe(streams); err != nil {
		return fmt.Errorf("binance/ws: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(w.subscribedStreams))
	for _, s := range w.subscribedStreams {
		existing[s] = struct{}{}
	}
	for _, s := range streams {
		if _, ok := existing[s]; !ok {
			w.subscribedStreams = append(w.subscribedStreams, s)
		}
	}

	return nil
}

// OnKline registers a handler that is called for every closed kline.
func (w *WSClient) OnKline(handler KlineHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.klineHandlers = append(w.klineHandlers, handler)
}

// Close shuts down the WebSocket connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// sendSubscribe sends a SUBSCRIBE command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(streams []string) error {
	w.cmdID++

	cmd := struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int64    `json:"id"`
	}{
		Method: "SUBSCRIBE",
		Params: streams,
		ID:     w.cmdID,
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads stream frames and dispatches them to
// handlers. On disconnect it attempts reconnection.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw frame and dispatches closed klines. Open
// bars are skipped so consumers only see finalized intervals.
func (w *WSClient) handleMessage(raw []byte) {
	var event wsKlineEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return
	}
	if event.EventType != "kline" || !event.Kline.Closed {
		return
	}

	k, err := event.Kline.toKline()
	if err != nil {
		return
	}

	w.handlerMu.RLock()
	handlers := w.klineHandlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(event.Symbol, k)
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
