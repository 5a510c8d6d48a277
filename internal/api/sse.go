// File path: internal/api/sse.go
package api

import (
	"iter"
	"net/http"

	"github.com/nicodishanthj/testcase_agent/internal/common"
	"github.com/nicodishanthj/testcase_agent/internal/stream"
)

// writeEvents frames each event as "data: <json>\n\n" and flushes it. A
// failed write stops the iteration, which abandons the relay run. Nothing is
// written after a terminal event.
func writeEvents(w http.ResponseWriter, events iter.Seq[stream.Event]) {
	logger := common.Logger()
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	for ev := range events {
		payload, err := ev.MarshalJSON()
		if err != nil {
			logger.Error("api: encode event failed", "type", ev.Type, "error", err)
			continue
		}
		frame := make([]byte, 0, len(payload)+8)
		frame = append(frame, "data: "...)
		frame = append(frame, payload...)
		frame = append(frame, "\n\n"...)
		if _, err := w.Write(frame); err != nil {
			logger.Debug("api: client went away", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if ev.Terminal() {
			return
		}
	}
}
