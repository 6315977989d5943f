package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"focusguard/internal/core/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client talks to a remote backend over a websocket connection.
type Client struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	writeMu sync.Mutex

	mu          sync.Mutex
	pending     map[string]chan frame
	subscribers map[int]chan model.Event
	nextID      int
	closed      bool
	done        chan struct{}
}

// Dial connects to the backend at url.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial backend %s: %w", url, err)
	}
	return newClient(conn, logger), nil
}

func newClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		conn:        conn,
		logger:      logger,
		pending:     make(map[string]chan frame),
		subscribers: make(map[int]chan model.Event),
		done:        make(chan struct{}),
	}
	go client.readLoop()
	return client
}

// Done is closed when the connection ends.
func (client *Client) Done() <-chan struct{} {
	return client.done
}

// Close terminates the connection.
func (client *Client) Close() error {
	client.writeMu.Lock()
	_ = client.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	client.writeMu.Unlock()
	err := client.conn.Close()
	<-client.done
	return err
}

// PollState implements Source.
func (client *Client) PollState(ctx context.Context) (model.CycleState, error) {
	var state model.CycleState
	err := client.call(ctx, MethodPollState, nil, &state)
	return state, err
}

// CurrentBreak implements Source.
func (client *Client) CurrentBreak(ctx context.Context) (*model.BreakSession, error) {
	var session *model.BreakSession
	if err := client.call(ctx, MethodCurrentBreak, nil, &session); err != nil {
		return nil, err
	}
	return session, nil
}

// Subscribe implements Source.
func (client *Client) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan model.Event, buffer)
	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := client.nextID
	client.nextID++
	client.subscribers[id] = ch
	client.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			client.mu.Lock()
			defer client.mu.Unlock()
			if existing, ok := client.subscribers[id]; ok {
				delete(client.subscribers, id)
				close(existing)
			}
		})
	}
}

// SetEmergencyExit implements Commands.
func (client *Client) SetEmergencyExit(ctx context.Context, active bool) error {
	return client.call(ctx, MethodSetEmergencyExit, emergencyExitParams{Active: active}, nil)
}

// HideLockdown implements Commands.
func (client *Client) HideLockdown(ctx context.Context) error {
	return client.call(ctx, MethodHideLockdown, nil, nil)
}

// RecordBypass implements Commands.
func (client *Client) RecordBypass(ctx context.Context, attempt model.BypassAttempt) error {
	return client.call(ctx, MethodRecordBypass, attempt, nil)
}

func (client *Client) call(ctx context.Context, method string, params any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := request{ID: uuid.NewString(), Method: method}
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: encode params: %w", method, err)
		}
		req.Params = encoded
	}

	replyCh := make(chan frame, 1)
	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		return ErrClosed
	}
	client.pending[req.ID] = replyCh
	client.mu.Unlock()
	defer func() {
		client.mu.Lock()
		delete(client.pending, req.ID)
		client.mu.Unlock()
	}()

	client.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = client.conn.SetWriteDeadline(deadline)
	}
	err := client.conn.WriteJSON(req)
	client.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: write request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.done:
		return ErrClosed
	case reply := <-replyCh:
		if reply.Error != "" {
			return fmt.Errorf("%s: %s", method, reply.Error)
		}
		if out == nil || len(reply.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(reply.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	}
}

func (client *Client) readLoop() {
	defer client.shutdown()
	for {
		var message frame
		if err := client.conn.ReadJSON(&message); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				client.logger.Warn("backend connection ended", "error", err)
			}
			return
		}
		if message.Event != nil {
			client.dispatch(*message.Event)
			continue
		}
		client.mu.Lock()
		replyCh, ok := client.pending[message.ID]
		client.mu.Unlock()
		if ok {
			select {
			case replyCh <- message:
			default:
			}
		}
	}
}

// dispatch fans out without blocking; a full subscriber misses the event.
func (client *Client) dispatch(event model.Event) {
	client.mu.Lock()
	defer client.mu.Unlock()
	for _, ch := range client.subscribers {
		select {
		case ch <- event:
		default:
			client.logger.Debug("dropped backend event", "kind", event.Kind)
		}
	}
}

func (client *Client) shutdown() {
	client.mu.Lock()
	client.closed = true
	for id, ch := range client.subscribers {
		delete(client.subscribers, id)
		close(ch)
	}
	client.mu.Unlock()
	close(client.done)
}
