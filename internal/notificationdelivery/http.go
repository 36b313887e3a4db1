// Package notificationdelivery streams ledger notifications to connected clients as Server-Sent Events.
package notificationdelivery

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mobile-bank/internal/middleware"
	"github.com/go-petr/mobile-bank/internal/notifier"
	"github.com/rs/zerolog"
)

// Stream event names besides the notification types.
const (
	EventReady = "ready"
	EventPing  = "ping"
)

// DefaultKeepAlive is how often an idle stream is pinged.
const DefaultKeepAlive = 25 * time.Second

// Subscriber hands out subscriptions to an owner's notifications.
type Subscriber interface {
	Subscribe(owner string) *notifier.Subscription
}

// Handler facilitates notification delivery layer logic.
type Handler struct {
	hub       Subscriber
	keepAlive time.Duration
}

// NewHandler returns notification handler. A non-positive keepAlive uses DefaultKeepAlive.
func NewHandler(hub Subscriber, keepAlive time.Duration) *Handler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	return &Handler{hub: hub, keepAlive: keepAlive}
}

// Stream subscribes the caller and writes every notification until the client goes away.
func (h *Handler) Stream(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)
	owner := middleware.Payload(gctx).Username

	sub := h.hub.Subscribe(owner)
	defer sub.Close()

	l.Debug().Str("owner", owner).Msg("notification stream opened")

	gctx.Header("Content-Type", "text/event-stream")
	gctx.Header("Cache-Control", "no-cache")
	gctx.Header("Connection", "keep-alive")
	gctx.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	gctx.SSEvent(EventReady, gin.H{"owner": owner})
	gctx.Writer.Flush()

	gctx.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-sub.C():
			if !ok {
				return false
			}

			gctx.SSEvent(n.Type, n)

			return true
		case <-ticker.C:
			gctx.SSEvent(EventPing, time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})

	l.Debug().Str("owner", owner).Msg("notification stream closed")
}
