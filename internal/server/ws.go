package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
)

// answerWS reads one text message carrying an answer request, then sends
// one text message per chunk. A finished answer closes with 1000; any
// failure sends {"error": ...} and closes with 1011.
func (h *handler) answerWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx := r.Context()
	lg := loggerFrom(ctx)
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	if typ != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "unsupported data")
		return
	}
	var req answerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.Write(ctx, websocket.MessageText, []byte(`{"error":"invalid json"}`))
		conn.Close(websocket.StatusInternalError, "invalid json")
		return
	}

	// A reader goroutine notices the peer going away and cancels the stream.
	ctx = conn.CloseRead(ctx)
	stream, err := h.p.Answer(ctx, req.Prompt, req.Model, req.APIKey)
	if err != nil {
		lg.Error().Err(err).Str("model", req.Model).Msg("ws answer setup failed")
		sendError(conn, r, publicError(err))
		return
	}
	defer stream.Close()
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				conn.Close(websocket.StatusNormalClosure, "done")
				return
			}
			lg.Warn().Err(err).Msg("ws answer stream ended with error")
			sendError(conn, r, publicError(err))
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(chunk)); err != nil {
			return
		}
	}
}

func sendError(conn *websocket.Conn, r *http.Request, msg string) {
	b, _ := json.Marshal(map[string]string{"error": msg})
	_ = conn.Write(r.Context(), websocket.MessageText, b)
	conn.Close(websocket.StatusInternalError, msg)
}
