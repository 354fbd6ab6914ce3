// internal/infrastructure/transport/httpserver/server.go
package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bsc-trading-assistant-bot/internal/infrastructure/config"
	"bsc-trading-assistant-bot/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HealthChecker - компонент, умеющий сообщать о своем здоровье
type HealthChecker interface {
	Name() string
	HealthCheck() bool
}

// Server - HTTP сервер для health-чеков и метрик Prometheus
type Server struct {
	config *config.Config
	srv    *http.Server

	mu     sync.Mutex
	checks []HealthChecker

	running bool
}

// New создает HTTP сервер
func New(cfg *config.Config) *Server {
	return &Server{
		config: cfg,
		checks: make([]HealthChecker, 0),
	}
}

// RegisterHealthCheck добавляет компонент в health-чек
func (s *Server) RegisterHealthCheck(check HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check)
}

// Start запускает сервер в отдельной горутине
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.srv = &http.Server{
		Addr:         s.config.GetHTTPAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("🌐 HTTP сервер запущен на %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ HTTP сервер упал: %v", err)
		}
	}()

	return nil
}

// Stop останавливает сервер с ожиданием активных запросов
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	logger.Info("🛑 Остановка HTTP сервера...")
	return srv.Shutdown(ctx)
}

// healthResponse - ответ /health
type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// handleHealth отдает состояние зарегистрированных компонентов.
// Любой нездоровый компонент переводит общий статус в degraded и код в 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	checks := make([]HealthChecker, len(s.checks))
	copy(checks, s.checks)
	s.mu.Unlock()

	resp := healthResponse{
		Status:     "ok",
		Components: make(map[string]string, len(checks)),
		Timestamp:  time.Now(),
	}

	for _, check := range checks {
		if check.HealthCheck() {
			resp.Components[check.Name()] = "up"
		} else {
			resp.Components[check.Name()] = "down"
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("⚠️ Не удалось записать ответ /health: %v", err)
	}
}

// Name возвращает имя сервиса
func (s *Server) Name() string {
	return "HTTPServer"
}

// IsRunning возвращает true если сервер запущен
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
