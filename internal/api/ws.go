package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const wsWriteTimeout = 5 * time.Second

// streamLogs pushes live job log lines over a websocket as
// {"log":{"timestamp","level","message"}}. ?job_id= limits the feed to one
// job; without it every job is streamed.
func (h *Handler) streamLogs(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log stream unavailable")
		return
	}

	filter := uuid.Nil
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid job id")
			return
		}
		filter = id
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	entries, cancel := h.logs.Subscribe(filter)
	defer cancel()

	// The client never sends; CloseRead handles control frames and reports
	// when the peer hangs up.
	ctx := conn.CloseRead(r.Context())
	h.log.Debug().Str("job_id", filter.String()).Msg("log stream opened")

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Msg("log stream closed by client")
			return

		case <-h.baseCtx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case e := <-entries:
			wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, LogMessage{Log: e})
			wcancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("log stream write")
				return
			}
		}
	}
}
