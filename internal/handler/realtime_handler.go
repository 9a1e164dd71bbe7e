package handler

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/realtime"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const heartbeatInterval = 15 * time.Second

// RealtimeHandler streams debounced change notices to admin screens over SSE
type RealtimeHandler struct {
	watcher   *realtime.Watcher
	heartbeat time.Duration
	logger    zerolog.Logger
}

func NewRealtimeHandler(watcher *realtime.Watcher) *RealtimeHandler {
	return &RealtimeHandler{
		watcher:   watcher,
		heartbeat: heartbeatInterval,
		logger:    log.With().Str("component", "realtime_http").Logger(),
	}
}

// Changes handles GET /v1/admin/changes?table=&row=
func (h *RealtimeHandler) Changes(c *fiber.Ctx) error {
	table := c.Query("table")
	rowID := c.Query("row")

	// the stream outlives the handler, so it cannot borrow the request context
	ctx, cancel := context.WithCancel(context.Background())
	notices, err := h.watcher.Watch(ctx, table, rowID)
	if err != nil {
		cancel()
		return writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		h.logger.Debug().Str("table", table).Str("row_id", rowID).Msg("sse stream opened")

		if err := writeEvent(w, "ready", fiber.Map{"table": table, "row_id": rowID}); err != nil {
			return
		}

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case notice, open := <-notices:
				if !open {
					return
				}
				if err := writeEvent(w, "refetch", notice); err != nil {
					h.logger.Debug().Err(err).Str("table", table).Msg("sse client gone")
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, name string, payload interface{}) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}
