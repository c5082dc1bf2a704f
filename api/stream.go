package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"dlsim/downloads"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	throttleInterval = 100 * time.Millisecond
	pingInterval     = 30 * time.Second
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Events streams task events as server-sent events. An optional ?id= limits
// the stream to one task.
func (a *API) Events(c *gin.Context) {
	id, err := a.filter(c)
	if err != nil {
		fail(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	err = a.stream(c.Request.Context(), id, func(ev downloads.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "marshal event")
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return errors.Wrap(err, "write event")
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Debug("event stream closed", slog.String("error", err.Error()))
	}
}

// WS streams the same events as Events over a WebSocket, one JSON text frame
// per event.
func (a *API) WS(c *gin.Context) {
	id, err := a.filter(c)
	if err != nil {
		fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(messageType, data)
	}

	// Clients only listen; reading detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					a.log.Debug("websocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	err = a.stream(ctx, id, func(ev downloads.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "marshal event")
		}
		return write(websocket.TextMessage, data)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Debug("websocket stream closed", slog.String("error", err.Error()))
	}
	_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (a *API) filter(c *gin.Context) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Query("id"))
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrapf(ErrNotFound, "invalid id %q", raw)
	}
	if _, ok := a.mgr.Get(id); !ok {
		return uuid.Nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return id, nil
}

// stream sends the current state of the watched tasks, then relays hub
// events. High-frequency progress is coalesced per task and flushed at most
// once per throttleInterval.
func (a *API) stream(ctx context.Context, id uuid.UUID, send func(downloads.Event) error) error {
	hub := a.mgr.Hub()
	ch := hub.Subscribe(id)
	defer hub.Unsubscribe(id, ch)

	for _, t := range a.mgr.Tasks() {
		if id != uuid.Nil && t.ID() != id {
			continue
		}
		ev := downloads.Event{Kind: downloads.EventStatus, Task: t.Snapshot(), At: time.Now()}
		if err := send(ev); err != nil {
			return err
		}
	}

	throttle := time.NewTicker(throttleInterval)
	defer throttle.Stop()

	var order []uuid.UUID
	pending := make(map[uuid.UUID]downloads.Event)
	flush := func() error {
		for _, key := range order {
			if err := send(pending[key]); err != nil {
				return err
			}
			delete(pending, key)
		}
		order = order[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return flush()
			}
			if _, seen := pending[ev.Task.ID]; !seen {
				order = append(order, ev.Task.ID)
			}
			pending[ev.Task.ID] = ev
		case <-throttle.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
