package tradier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"trade_sync/internal/domain"
	"trade_sync/internal/infra"

	"github.com/gorilla/websocket"
)

// StreamState tracks the connection lifecycle.
type StreamState int32

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamFailed
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "DISCONNECTED"
	case StreamConnecting:
		return "CONNECTING"
	case StreamConnected:
		return "CONNECTED"
	case StreamReconnecting:
		return "RECONNECTING"
	case StreamFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// SessionProvider issues a fresh stream session for each (re)connect.
type SessionProvider func(ctx context.Context) (string, error)

// StreamWorker maintains the long-lived push connection. Reconnection uses
// exponential backoff up to MaxRetries; exhausting the budget lands in the
// terminal FAILED state, surfaced on Fatal() rather than retried forever.
// All active subscriptions are replayed on every successful (re)connect
// before the connection counts as ready — the venue does not keep them
// across reconnects. Read deadlines double as staleness detection: a quiet
// transport is force-reconnected even if it never reported a close.
type StreamWorker struct {
	url     string
	session SessionProvider
	inbox   chan<- domain.StreamEvent

	symbols map[string]bool
	subMu   sync.Mutex

	conn      *websocket.Conn
	sessionID string
	mu        sync.RWMutex
	writeMu   sync.Mutex

	state   atomic.Int32
	closing atomic.Bool // caller-initiated intent, not inferred from close reason
	fatal   chan error
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	MaxRetries  int
	ReadTimeout time.Duration
}

// NewStreamWorker creates a stream worker for the given push endpoint.
func NewStreamWorker(url string, session SessionProvider, inbox chan<- domain.StreamEvent) *StreamWorker {
	return &StreamWorker{
		url:         url,
		session:     session,
		inbox:       inbox,
		symbols:     make(map[string]bool),
		fatal:       make(chan error, 1),
		MaxRetries:  10,
		ReadTimeout: 60 * time.Second,
	}
}

// Connect starts the connection loop.
func (w *StreamWorker) Connect(ctx context.Context) error {
	if StreamState(w.state.Load()) == StreamFailed {
		return domain.ErrStreamFailed
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// Disconnect performs a clean caller-initiated shutdown; no reconnection
// is attempted.
func (w *StreamWorker) Disconnect() {
	w.closing.Store(true)
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	w.setState(StreamDisconnected)
}

// Subscribe registers symbols for live events. Already connected workers
// send the subscription immediately; reconnects replay the whole set.
func (w *StreamWorker) Subscribe(symbols ...string) error {
	w.subMu.Lock()
	for _, s := range symbols {
		w.symbols[s] = true
	}
	w.subMu.Unlock()

	if w.State() != StreamConnected {
		return nil
	}
	return w.sendSubscriptions()
}

// Fatal delivers the terminal error after the reconnect budget is exhausted.
func (w *StreamWorker) Fatal() <-chan error {
	return w.fatal
}

// State returns the current connection state.
func (w *StreamWorker) State() StreamState {
	return StreamState(w.state.Load())
}

func (w *StreamWorker) setState(s StreamState) {
	w.state.Store(int32(s))
	infra.GlobalMetrics.SetStreamConnected(s == StreamConnected)
}

func (w *StreamWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			if w.closing.Load() {
				return
			}
			retry++
			if retry > w.MaxRetries {
				w.setState(StreamFailed)
				slog.Error("Stream reconnect budget exhausted",
					slog.Int("attempts", retry), slog.Any("error", err))
				select {
				case w.fatal <- fmt.Errorf("%w: %v", domain.ErrStreamFailed, err):
				default:
				}
				return
			}

			w.setState(StreamReconnecting)
			delay := infra.CalculateBackoff(retry - 1)
			slog.Warn("Stream connection failed",
				slog.Any("error", err), slog.Int("retry", retry), slog.Duration("backoff", delay))

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.readLoop(ctx)

		if w.closing.Load() {
			return
		}
		w.setState(StreamReconnecting)
	}
}

// connect dials, authenticates, and replays subscriptions. The connection is
// not CONNECTED until the replay succeeds.
func (w *StreamWorker) connect(ctx context.Context) error {
	w.setState(StreamConnecting)

	sessionID, err := w.session(ctx)
	if err != nil {
		return fmt.Errorf("stream session: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, make(http.Header))
	if err != nil {
		return domain.NewNetworkError("stream_dial", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.sessionID = sessionID
	w.mu.Unlock()

	if err := w.sendSubscriptions(); err != nil {
		w.closeConnection()
		return fmt.Errorf("subscription replay: %w", err)
	}

	w.setState(StreamConnected)
	slog.Info("Stream connected", slog.Int("subs", w.subscriptionCount()))
	return nil
}

func (w *StreamWorker) subscriptionCount() int {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	return len(w.symbols)
}

func (w *StreamWorker) sendSubscriptions() error {
	w.subMu.Lock()
	symbols := make([]string, 0, len(w.symbols))
	for s := range w.symbols {
		symbols = append(symbols, s)
	}
	w.subMu.Unlock()

	w.mu.RLock()
	sessionID := w.sessionID
	w.mu.RUnlock()

	msg := map[string]any{
		"sessionid": sessionID,
		"events":    []string{"order"},
		"symbols":   symbols,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *StreamWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return domain.ErrNotConnected
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *StreamWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		// Any message, heartbeat included, refreshes the deadline. Silence
		// past the deadline fails the read and forces a reconnect.
		conn.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !w.closing.Load() {
				slog.Warn("Stream read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		for _, ev := range parseStreamEvents(msg) {
			select {
			case w.inbox <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *StreamWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
