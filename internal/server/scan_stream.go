package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// progressInterval is how many scanned items pass between progress frames.
const progressInterval = 25

// streamFrame is one websocket message on the scan stream. Type is
// "progress", "report" or "error".
type streamFrame struct {
	Type        string      `json:"type"`
	Done        int         `json:"done,omitempty"`
	Total       int         `json:"total,omitempty"`
	Report      interface{} `json:"report,omitempty"`
	Lines       []string    `json:"lines,omitempty"`
	Diagnostics interface{} `json:"diagnostics,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// handleScanStream handles GET /api/scan/stream. The client sends one scan
// request as the first text message, receives periodic progress frames while
// the catalog is walked, then the final report frame.
func (s *Server) handleScanStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "scan aborted")

	ctx := r.Context()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msgType, data, err := conn.Read(readCtx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read scan request from websocket")
		return
	}
	if msgType != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "expected text message")
		return
	}

	var req scanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.writeFrame(ctx, conn, streamFrame{Type: "error", Error: "invalid request body"})
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid request")
		return
	}

	params, diagnostics, err := s.scanParams(req)
	if err != nil {
		s.writeFrame(ctx, conn, streamFrame{Type: "error", Error: err.Error()})
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid request")
		return
	}

	params.Progress = func(done, total int) {
		if done%progressInterval != 0 && done != total {
			return
		}
		s.writeFrame(ctx, conn, streamFrame{Type: "progress", Done: done, Total: total})
	}

	report := s.scanner.Scan(params)

	s.writeFrame(ctx, conn, streamFrame{
		Type:        "report",
		Report:      report,
		Lines:       report.Lines(),
		Diagnostics: diagnostics,
	})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, frame streamFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal stream frame")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write stream frame")
	}
}
