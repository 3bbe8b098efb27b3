package httpapi

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

// handleProgressStream serves the progress hub over server-sent events. The
// subscription lives for as long as the client keeps the connection open; a
// reconnecting client starts from the live stream and forfeits missed
// events.
func (s *Server) handleProgressStream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	events, unsubscribe := s.hub.Subscribe()
	logger := s.logger.With(zap.String("remote", c.IP()))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		logger.Debug("Progress stream subscriber connected")
		streamEvents(w, events, heartbeatInterval)
		logger.Debug("Progress stream subscriber detached")
	})
	return nil
}

// streamEvents writes events to w in SSE framing until the channel closes
// or the client goes away. fasthttp surfaces a dropped connection as a
// flush error, and the periodic heartbeat comment bounds how long a silent
// stream can hold a dead connection open.
func streamEvents(w *bufio.Writer, events <-chan schemas.ProgressEvent, heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}
