package server

import (
	"net/http"

	"github.com/Real-Craft-Tech/stampwire/internal/metrics"
	"github.com/Real-Craft-Tech/stampwire/internal/receiver"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))

	if r.server.cfg.Server.CORS.Enabled {
		r.Use(CORSMiddleware(r.server.cfg.Server.CORS))
	}
}

func (r *Router) setupRoutes() {
	webhookHandler := receiver.NewHandler(r.server.secrets, r.server.receipts, r.server.registry)
	r.mux.Handle("POST /webhooks/{endpoint}", webhookHandler)

	r.mux.HandleFunc("GET /health", r.server.handleHealth)
	r.mux.Handle("GET /metrics", metrics.Handler())

	if r.server.cfg.Admin.Enabled {
		admin := newAdminHandlers(r.server)
		auth := AdminAuthMiddleware(r.server.cfg.Admin.JWT)

		r.mux.Handle("GET /api/admin/receipts", auth(http.HandlerFunc(admin.listReceipts)))
		r.mux.Handle("GET /api/admin/queue", auth(http.HandlerFunc(admin.listQueue)))
		r.mux.Handle("GET /api/admin/dlq", auth(http.HandlerFunc(admin.listDLQ)))
		r.mux.Handle("POST /api/admin/dlq/{id}/requeue", auth(http.HandlerFunc(admin.requeueDLQ)))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = r.mux
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}
	handler.ServeHTTP(w, req)
}
