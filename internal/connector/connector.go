// Package connector establishes the control-socket connection at startup,
// retrying a bounded number of times with a fixed delay before giving up
// (spec §4.J). There is no steady-state reconnect: once connected, a broken
// socket flows through the bus as Quit (spec §4.G, §4.J).
package connector

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MaxAttempts and RetryDelay are the fixed startup-retry parameters spec
// §4.J specifies: "Retry up to 10 times with a 1-second fixed delay".
const (
	MaxAttempts = 10
	RetryDelay  = 1 * time.Second
)

// Dial connects to the control socket at url, retrying on failure up to
// MaxAttempts times. It panics if every attempt fails. main calls Dial
// before the Supervisor starts its tasks, so the Supervisor's
// panic-recovery hook does not see this panic; it is unrecovered and the Go
// runtime exits the process with status 2 (see DESIGN.md "Connector panic
// vs. exit code 1").
func Dial(url string, logger *zap.Logger) *websocket.Conn {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			logger.Info("control socket connected", zap.String("url", url), zap.Int("attempt", attempt))
			return conn
		}
		lastErr = err
		logger.Warn("control socket connect failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < MaxAttempts {
			time.Sleep(RetryDelay)
		}
	}
	panic(fmt.Sprintf("connector: control socket unreachable after %d attempts: %v", MaxAttempts, lastErr))
}
