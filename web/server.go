// ABOUTME: HTTP API for contacts and sync triggers
// ABOUTME: chi router with tenant resolution, JSON errors, health and metrics
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/sync"
	"go.uber.org/zap"
)

// TenantHeader carries the authenticated tenant id.
const TenantHeader = "X-Auth-Id"

// ContactAPI is the service surface the handlers need.
type ContactAPI interface {
	List(ctx context.Context, tenantID string) ([]models.Contact, error)
	Save(ctx context.Context, tenantID string, in sync.ContactInput) (*sync.SaveResult, error)
	Update(ctx context.Context, tenantID string, id uuid.UUID, patch sync.ContactPatch) (*sync.SaveResult, error)
	Delete(ctx context.Context, tenantID string, id uuid.UUID) (*sync.DeleteResult, error)
	DeleteByEmail(ctx context.Context, tenantID, email string) (*sync.DeleteResult, error)
	Sync(ctx context.Context, tenantID string) (*sync.Summary, error)
	SyncInBackground(tenantID string)
}

// Deps groups what NewRouter needs.
type Deps struct {
	Contacts      ContactAPI
	Metrics       http.Handler // optional
	DefaultTenant string
	SyncTimeout   time.Duration
	Logger        *zap.Logger
}

type server struct {
	contacts      ContactAPI
	defaultTenant string
	syncTimeout   time.Duration
	logger        *zap.Logger
}

// NewRouter builds the API router.
func NewRouter(deps Deps) http.Handler {
	s := &server{
		contacts:      deps.Contacts,
		defaultTenant: deps.DefaultTenant,
		syncTimeout:   deps.SyncTimeout,
		logger:        deps.Logger,
	}
	if s.syncTimeout <= 0 {
		s.syncTimeout = 50 * time.Second
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireTenant)

		r.Route("/api/contacts", func(r chi.Router) {
			r.Get("/", s.listContacts)
			r.Post("/", s.saveContact)
			r.Delete("/", s.deleteContactByEmail)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", s.updateContact)
				r.Delete("/", s.deleteContact)
			})
		})

		r.Post("/api/sync", s.runSync)
	})

	return r
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	return s.http.Shutdown(shutdownCtx)
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
