// Package web serves the page, accepts user actions and pushes region updates
// to connected browsers.
package web

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"rssreader/internal/domain"
	"rssreader/internal/render"
	"rssreader/internal/state"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed static/*
var staticFS embed.FS

type Ingester interface {
	Ingest(ctx context.Context, rawURL string) error
}

type Server struct {
	router   chi.Router
	store    *state.Store
	renderer *render.Renderer
	ingester Ingester
	hub      *Hub

	// ctx outlives requests; submissions keep running after the 202 is sent.
	ctx context.Context
	wg  sync.WaitGroup

	log *slog.Logger
}

func New(
	ctx context.Context,
	store *state.Store,
	renderer *render.Renderer,
	ingester Ingester,
	hub *Hub,
	log *slog.Logger,
) *Server {
	s := &Server{
		store:    store,
		renderer: renderer,
		ingester: ingester,
		hub:      hub,
		ctx:      ctx,
		log:      log,
	}
	s.setupRoutes()

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until every background ingestion has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handlePage)
	r.Post("/feeds", s.handleAddFeed)
	r.Post("/posts/{postID}/preview", s.handlePreview)
	r.Post("/preview/close", s.handleClosePreview)
	r.Get("/regions/{region}", s.handleRegion)
	r.Get("/ws", s.handleWS)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router = r
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := s.renderer.Page(w); err != nil {
		s.log.ErrorContext(r.Context(), "Failed to render page",
			"error", err)
	}
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	rawURL := r.PostFormValue("url")

	s.wg.Go(func() {
		// The outcome lands in the store and reaches the page through the renderer.
		if err := s.ingester.Ingest(s.ctx, rawURL); err != nil {
			s.log.DebugContext(s.ctx, "Feed is not added",
				"error", err,
				"url", rawURL)
		}
	})

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	var found bool
	s.store.UpdateFunc(func(current domain.AppState) state.Patch {
		if _, found = current.PostByID(postID); !found {
			return state.Patch{}
		}

		return state.Patch{UIState: &state.UIPatch{
			ViewedPostIDs: state.Viewed(postID),
			PreviewPostID: state.Set(postID),
		}}
	})

	if !found {
		http.Error(w, "post not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClosePreview(w http.ResponseWriter, _ *http.Request) {
	s.store.Update(state.Patch{UIState: &state.UIPatch{
		PreviewPostID: state.Set(""),
	}})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	region, ok := render.ParseRegion(chi.URLParam(r, "region"))
	if !ok {
		http.Error(w, "unknown region", http.StatusNotFound)
		return
	}

	fragment, _ := s.renderer.Fragment(region)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(fragment))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, s.currentRegions)
}

func (s *Server) currentRegions() []Message {
	messages := make([]Message, 0, len(render.Regions))
	for _, region := range render.Regions {
		fragment, _ := s.renderer.Fragment(region)
		messages = append(messages, Message{Region: region, HTML: fragment})
	}

	return messages
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.DebugContext(r.Context(), "Request is served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
