package httpapi

import (
	"database/sql"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/korylprince/redbox-chat/replay"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//StreamConfig holds configuration for the websocket stream handler
type StreamConfig struct {
	Script      *replay.Script
	FrameRate   float64
	TitleLength int
	//Bus receives chat-response-end events; optional
	Bus Publisher
}

//NewRouter returns an HTTP router for the HTTP API
func NewRouter(w io.Writer, db *sql.DB, streamCfg *StreamConfig) http.Handler {

	//construct middleware
	var m = func(h returnHandler) http.Handler {
		return handlers.CompressHandler(logMiddleware(jsonMiddleware(txMiddleware(h, db)), w))
	}

	if streamCfg == nil {
		streamCfg = new(StreamConfig)
	}
	titleLength := streamCfg.TitleLength
	if titleLength <= 0 {
		titleLength = 255
	}

	r := mux.NewRouter()

	r.Path("/chat/").Methods("GET").Handler(m(handleListSessions))
	r.Path("/chat/{id}").Methods("GET").Handler(m(handleReadSession))
	r.Path("/chat/{id}/title/").Methods("POST").Handler(m(handleRenameSession(titleLength)))

	//websocket: no JSON or compression middleware
	r.Path("/ws/chat/").Handler(NewStreamHandler(db, streamCfg.Script, streamCfg.FrameRate, titleLength, w).WithBus(streamCfg.Bus))

	r.Path("/metrics").Handler(promhttp.Handler())

	r.NotFoundHandler = m(notFoundHandler)

	return http.StripPrefix("/api/1.0", r)
}
