package api

import (
	"net/http"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/queue"
	"chatdesk-backend/internal/websocket"
	"chatdesk-backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type APIServer struct {
	listenAddr      string
	queueManager    *queue.DispatchQueueManager
	db              *database.Database
	routeRegistrars []RouteRegistrar
	handler         *websocket.Handler
	metrics         *metrics
	log             *logger.Logger
}

func NewAPIServer(listenAddr string, dqm *queue.DispatchQueueManager, db *database.Database, handler *websocket.Handler, registrars ...RouteRegistrar) *APIServer {
	return &APIServer{
		listenAddr:      listenAddr,
		queueManager:    dqm,
		db:              db,
		handler:         handler,
		routeRegistrars: registrars,
		metrics:         newMetrics(prometheus.DefaultRegisterer, listenAddr, dqm),
		log:             logger.Global(),
	}
}

func (s *APIServer) Run() {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	s.log.Info("server listening", zap.String("addr", s.listenAddr))

	if err := http.ListenAndServe(s.listenAddr, s.metrics.instrument(mux)); err != nil {
		s.log.Error("server stopped", zap.Error(err))
	}
}

func (s *APIServer) Database() *database.Database {
	return s.db
}

func (s *APIServer) Handler() *websocket.Handler {
	return s.handler
}

func (s *APIServer) QueueManager() *queue.DispatchQueueManager {
	return s.queueManager
}
