package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-comms/internal/events"
)

// eventBuffer is how many events a slow SSE client may fall behind before
// events are dropped for it.
const eventBuffer = 32

// Events streams archive events as server-sent events until the client goes away.
func (h *Handler) Events(c *gin.Context) {
	if h.Bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
		return
	}

	ch := make(chan events.Event, eventBuffer)
	cancel := h.Bus.Subscribe(func(e events.Event) {
		select {
		case ch <- e:
		default:
		}
	})
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			c.SSEvent(string(e.Kind), e)
			c.Writer.Flush()
		}
	}
}
