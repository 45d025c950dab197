// Package control implements the Control Receiver (spec §4.G): reads JSON
// commands from the bidirectional control socket and publishes them to the
// bus, publishing Quit on close or I/O error.
//
// The read loop's shape — a dedicated goroutine looping on blocking reads,
// checking ctx cancellation, dropping malformed messages with a log
// instead of failing the loop — mirrors the durable consumer loop used for
// the domain-event subscription in the teacher's notification service.
package control

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pjatk21/sigma-api/internal/bus"
	"github.com/pjatk21/sigma-api/internal/model"
)

// Receiver owns the inbound socket stream exclusively (spec §5 "Shared resources").
type Receiver struct {
	conn   *websocket.Conn
	bus    *bus.Bus
	logger *zap.Logger
}

// New builds a Receiver around an already-connected socket (see connector.Dial).
func New(conn *websocket.Conn, b *bus.Bus, logger *zap.Logger) *Receiver {
	return &Receiver{conn: conn, bus: b, logger: logger}
}

// Run blocks, reading frames until the socket closes, an I/O error occurs,
// or ctx is cancelled. It always publishes exactly one Quit before
// returning (spec §4.G).
func (r *Receiver) Run(ctx context.Context) {
	defer r.bus.Publish(model.BusMessage{Kind: model.KindQuit})

	// A blocked ReadMessage does not observe ctx; closing the socket on
	// cancellation makes it return so Run can exit.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.conn.Close()
		case <-done:
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Info("control socket closed by peer")
			} else {
				r.logger.Warn("control socket read error", zap.Error(err))
			}
			return
		}

		var cmd model.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			r.logger.Warn("dropping malformed control frame", zap.Error(err), zap.ByteString("frame", data))
			continue
		}

		r.bus.Publish(model.BusMessage{Kind: model.KindCommand, Command: cmd})
	}
}
