package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const keepAliveInterval = 30 * time.Second

// streamEvents relays hub events as server-sent events until the client
// goes away or the hub closes.
func (s *Server) streamEvents(c *gin.Context) {
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	sess, _ := sessionFrom(c)
	logrus.WithField("user", sess.Email).Debug("event stream opened")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	// An initial comment flushes headers so clients see the stream open.
	_, _ = c.Writer.Write([]byte(": connected\n\n"))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-ticker.C:
			_, err := w.Write([]byte(": ping\n\n"))
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
	logrus.WithField("user", sess.Email).Debug("event stream closed")
}
