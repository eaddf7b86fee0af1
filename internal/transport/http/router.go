package http

import (
	"log/slog"
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/ephemeral-chat/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(h *Handler, ws http.HandlerFunc, cfg RouterConfig, log *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.WithRequestLogger(log))
	r.Use(httpmw.RequestLogger)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// websocket connections outlive any request timeout
	if ws != nil {
		r.Get("/ws", ws)
	}

	r.Group(func(api chi.Router) {
		api.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		api.Route("/room", func(rm chi.Router) {
			rm.Post("/create", h.CreateRoom)
			rm.Get("/", h.GetRoom)
			rm.Delete("/", h.DestroyRoom)
			rm.Get("/ttl", h.GetTTL)
			rm.Post("/join", h.JoinRoom)
		})
		api.Route("/messages", func(rm chi.Router) {
			rm.Post("/", h.SendMessage)
			rm.Get("/", h.ListMessages)
		})
	})

	r.Get("/healthz", h.Health)

	return r
}
