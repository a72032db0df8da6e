package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/eventbus"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/hardware"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/pin"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/pipeline"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/plugin"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type Dependencies struct {
	Logger    *slog.Logger
	Addr      string
	Pipeline  *pipeline.Pipeline
	Collector *pin.Collector
	Readers   *service.ReaderDirectory
	Status    *service.StatusService
	Outbox    *hardware.Outbox
	Plugins   *plugin.Registry
	Bus       *eventbus.Bus
	Metrics   http.Handler // optional
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux

	pipeline  *pipeline.Pipeline
	collector *pin.Collector
	readers   *service.ReaderDirectory
	status    *service.StatusService
	outbox    *hardware.Outbox
	plugins   *plugin.Registry
	bus       *eventbus.Bus
	now       func() time.Time

	// closing is closed when Shutdown begins so event streams end.
	closing chan struct{}
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:    logger,
		mux:       mux,
		pipeline:  d.Pipeline,
		collector: d.Collector,
		readers:   d.Readers,
		status:    d.Status,
		outbox:    d.Outbox,
		plugins:   d.Plugins,
		bus:       d.Bus,
		now:       time.Now,
		closing:   make(chan struct{}),
	}

	mux.HandleFunc("POST /v1/card_read", s.handleCardRead)
	mux.HandleFunc("POST /v1/pin_digit", s.handlePinDigit)
	mux.HandleFunc("POST /v1/reader_status", s.handleReaderStatus)
	mux.HandleFunc("GET /v1/readers", s.handleListReaders)
	mux.HandleFunc("DELETE /v1/readers/{id}/pin", s.handleClearPin)
	mux.HandleFunc("GET /v1/readers/{id}/feedback", s.handleDrainFeedback)
	mux.HandleFunc("GET /v1/plugins", s.handleListPlugins)
	mux.HandleFunc("POST /v1/plugins/reload", s.handleReloadPlugins)
	mux.HandleFunc("DELETE /v1/plugins/{id}", s.handleUnloadPlugin)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	handler := loggingMiddleware(logger, limitBody(mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(func() { close(s.closing) })

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Hardware ingestion ───────────────────────────────────────────────────────

func (s *Server) handleCardRead(w http.ResponseWriter, r *http.Request) {
	var req types.CardReadRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	// The read is processed to the end even if the reader hangs up.
	ctx := context.WithoutCancel(r.Context())

	name := ""
	if rd, err := s.readers.GetReader(ctx, req.ReaderID); err == nil {
		name = rd.Name
	}

	ev, err := service.NewCardReadEvent(req, name, s.now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidReaderID):
			writeError(w, http.StatusBadRequest, "invalid_reader_id", err.Error())
		case errors.Is(err, service.ErrInvalidCardNumber):
			writeError(w, http.StatusBadRequest, "invalid_card_number", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "invalid_card_read", err.Error())
		}
		return
	}

	respond(w, r, http.StatusOK, s.pipeline.ProcessCardRead(ctx, ev))
}

func (s *Server) handlePinDigit(w http.ResponseWriter, r *http.Request) {
	var req types.PinDigitRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	readerID, digit, err := service.ParseDigit(req)
	if err != nil {
		code := "invalid_digit"
		if errors.Is(err, service.ErrInvalidReaderID) {
			code = "invalid_reader_id"
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	complete := s.collector.AddDigit(readerID, digit)
	respond(w, r, http.StatusOK, types.PinDigitResponse{
		Complete: complete,
		Length:   s.collector.Length(readerID),
	})
}

func (s *Server) handleClearPin(w http.ResponseWriter, r *http.Request) {
	s.collector.ClearPin(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReaderStatus(w http.ResponseWriter, r *http.Request) {
	var req types.ReaderStatusRequest
	if err := decodeRequest(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	ev, err := s.status.Record(ctx, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidReaderID) {
			writeError(w, http.StatusBadRequest, "invalid_reader_id", err.Error())
			return
		}
		s.logger.Error("reader_status error", "reader_id", req.ReaderID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if err := s.readers.NoteSeen(ctx, ev.ReaderID); err != nil {
		s.logger.Warn("mark reader seen failed", "reader_id", ev.ReaderID, "error", err)
	}

	respond(w, r, http.StatusOK, ev)
}

type feedbackResponse struct {
	ReaderID string                    `json:"reader_id"`
	Feedback []hardware.QueuedFeedback `json:"feedback"`
}

func (s *Server) handleDrainFeedback(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_max", "max must be a non-negative integer")
			return
		}
		limit = n
	}

	id := r.PathValue("id")
	items := s.outbox.Drain(id, limit)
	if items == nil {
		items = []hardware.QueuedFeedback{}
	}
	respond(w, r, http.StatusOK, feedbackResponse{ReaderID: id, Feedback: items})
}

// ── Administration ───────────────────────────────────────────────────────────

func (s *Server) handleListReaders(w http.ResponseWriter, r *http.Request) {
	readers, err := s.readers.GetAllReaders(r.Context())
	if err != nil {
		s.logger.Error("list readers error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readers": readers})
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := s.plugins.GetAvailablePlugins(r.Context())
	if err != nil {
		s.logger.Error("list plugins error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": nonNil(plugins)})
}

func (s *Server) handleReloadPlugins(w http.ResponseWriter, r *http.Request) {
	if _, err := s.plugins.ReloadPlugins(r.Context()); err != nil {
		s.logger.Error("reload plugins error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "plugin reload failed")
		return
	}
	s.handleListPlugins(w, r)
}

func (s *Server) handleUnloadPlugin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.plugins.UnloadPlugin(r.Context(), id); err != nil {
		if errors.Is(err, plugin.ErrPluginNotLoaded) {
			writeError(w, http.StatusNotFound, "plugin_not_loaded", err.Error())
			return
		}
		s.logger.Error("unload plugin error", "plugin_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(md []types.PluginMetadata) []types.PluginMetadata {
	if md == nil {
		return []types.PluginMetadata{}
	}
	return md
}
