// Package emitter implements the Emitter (spec §4.H): subscribes to the
// bus and forwards Entry/Finished either as text frames on the control
// socket or as HTTP POSTs to the configured upload sink, depending on
// configuration. I/O errors are logged, never fatal — the Emitter leaves
// escalation to the Supervisor (spec §4.H, §4.I).
//
// The HTTP-dispatch half of this mirrors the teacher's webhook dispatcher:
// build the request, set a bearer-style secret header, POST with a bounded
// client timeout, log outcome. The difference from that teacher code is
// the header is a static shared key (spec §6 "X-Upload-Key"), not an
// HMAC signature — there is nothing here to sign, just a single entry body.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pjatk21/sigma-api/internal/bus"
	"github.com/pjatk21/sigma-api/internal/entrydecoder"
	"github.com/pjatk21/sigma-api/internal/model"
)

// FinishedFrame is the literal text frame sent to mark a day's completion
// (spec §4.H, §6).
const FinishedFrame = "finished"

// Sink decides where Entry/Finished messages are forwarded.
type Sink interface {
	SendEntry(ctx context.Context, msg model.BusMessage) error
	SendFinished(ctx context.Context) error
}

// SocketSink forwards to the control socket as text frames. Owns the
// outbound socket exclusively (spec §5 "Shared resources").
type SocketSink struct {
	Conn *websocket.Conn
}

func (s *SocketSink) SendEntry(_ context.Context, msg model.BusMessage) error {
	data, err := json.Marshal(msg.Entry)
	if err != nil {
		return fmt.Errorf("emitter: marshal entry: %w", err)
	}
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

func (s *SocketSink) SendFinished(_ context.Context) error {
	return s.Conn.WriteMessage(websocket.TextMessage, []byte(FinishedFrame))
}

// HTTPSink posts each entry to UploadURL with the shared X-Upload-Key
// header (spec §6). Mode selects raw {htmlId, body} vs. the decoded
// TimetableEntry shape (SPEC_FULL.md "Supplemented features").
type HTTPSink struct {
	Client    *http.Client
	UploadURL string
	UploadKey string
	Mode      string // "raw" | "decoded"
	Logger    *zap.Logger
}

func (s *HTTPSink) SendEntry(ctx context.Context, msg model.BusMessage) error {
	var payload any = msg.Entry
	if s.Mode == "decoded" {
		decoded, err := entrydecoder.Decode(msg.Entry.Body)
		if err != nil {
			return fmt.Errorf("emitter: decode entry %s: %w", msg.Entry.HTMLID, err)
		}
		payload = decoded
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("emitter: marshal upload entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.UploadURL+"/v1/timetable/parse", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.UploadKey != "" {
		req.Header.Set("X-Upload-Key", s.UploadKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("emitter: upload post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("emitter: upload sink returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) SendFinished(_ context.Context) error {
	// The HTTP sink has no persistent frame to signal completion on; the
	// literal "finished" marker is a control-socket concept (spec §6). A
	// deployment using the HTTP sink relies on the control socket (if any
	// is still attached) or simply the absence of further POSTs.
	return nil
}

// Emitter owns the subscription loop.
type Emitter struct {
	sub    <-chan model.BusMessage
	bus    *bus.Bus
	sink   Sink
	logger *zap.Logger
}

// New subscribes to b and returns an Emitter that forwards to sink.
func New(b *bus.Bus, sink Sink, logger *zap.Logger) *Emitter {
	return &Emitter{sub: b.Subscribe(), bus: b, sink: sink, logger: logger}
}

// Run processes messages until the bus closes or a Quit is observed. It
// always unsubscribes before returning.
func (e *Emitter) Run(ctx context.Context) {
	defer e.bus.Unsubscribe(e.sub)

	for msg := range e.sub {
		switch msg.Kind {
		case model.KindEntry:
			if err := e.sink.SendEntry(ctx, msg); err != nil {
				e.logger.Error("emitter: failed to send entry", zap.String("html_id", msg.Entry.HTMLID), zap.Error(err))
			}
		case model.KindFinished:
			if err := e.sink.SendFinished(ctx); err != nil {
				e.logger.Error("emitter: failed to send finished marker", zap.Error(err))
			}
		case model.KindQuit:
			return
		case model.KindCommand:
			// Not of interest to the Emitter.
		}
	}
}

// NewHTTPClient builds the client used by HTTPSink with a sane bounded
// timeout, matching the teacher's webhook dispatcher's 10s client timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
