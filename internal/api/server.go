package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pmsgw/internal/bus"
	"pmsgw/internal/config"
	"pmsgw/internal/metrics"
	"pmsgw/internal/pms"
	"pmsgw/internal/secrets"
	"pmsgw/internal/store"
	"pmsgw/internal/syncer"
	"pmsgw/internal/webhooks"
)

// Server wires the HTTP surface: vendor webhook endpoints, the tenant
// configuration API, dead-letter admin, and the live event stream.
type Server struct {
	Store    store.Store
	Bus      bus.Bus
	Box      *secrets.Box
	Registry *pms.Registry
	Syncer   *syncer.Syncer
	Receiver *webhooks.Receiver
	Log      *zap.Logger
}

func NewServer(st store.Store, b bus.Bus, box *secrets.Box, reg *pms.Registry, sy *syncer.Syncer, secretsCfg config.WebhookSecrets, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Store:    st,
		Bus:      b,
		Box:      box,
		Registry: reg,
		Syncer:   sy,
		Receiver: webhooks.NewReceiver(st, b, secretsCfg, log),
		Log:      log,
	}
}

// Router builds the chi router with logging and metrics middleware.
func (s *Server) Router() http.Handler {
	metrics.RegisterDefault()
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(s.observe)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.HealthHandler)
	r.Get("/readyz", s.ReadyHandler)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Post("/webhooks/cloudbeds", s.Receiver.CloudbedsHandler)
	r.Post("/webhooks/opera", s.Receiver.OperaHandler)

	r.Route("/v1/pms", func(r chi.Router) {
		r.Get("/config", s.GetConfigHandler)
		r.Post("/config", s.SaveConfigHandler)
		r.Delete("/config", s.DisconnectHandler)
		r.Post("/sync", s.SyncHandler)
		r.Get("/dead-letters", s.DeadLettersHandler)
		r.Post("/dead-letters/{id}/requeue", s.RequeueDeadLetterHandler)
	})

	r.Get("/v1/events/ws", s.EventsWSHandler)
	return r
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		status := strconv.Itoa(ww.Status())
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(elapsed.Seconds())
		s.Log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
		)
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// tenantID resolves the caller's tenant from the X-Tenant-Id header.
func tenantID(r *http.Request) string {
	return r.Header.Get("X-Tenant-Id")
}
