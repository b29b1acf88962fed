// Package api exposes the HTML interface over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/shalteor/bplog/internal/middleware"
	"github.com/shalteor/bplog/internal/models"
	"github.com/shalteor/bplog/internal/validate"
)

// Accounts is the account use case surface the handlers need.
type Accounts interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, caller *models.User) ([]models.User, error)
	DeleteUser(ctx context.Context, callerID, targetID int64) error
}

// Readings is the reading use case surface the handlers need.
type Readings interface {
	Create(ctx context.Context, userID int64, raw validate.Raw) (*models.Reading, error)
	List(ctx context.Context, userID int64, order models.SortOrder) ([]models.Reading, error)
	Delete(ctx context.Context, userID, readingID int64) error
	Import(ctx context.Context, userID int64, r io.Reader, filename string) (models.ImportSummary, error)
	Location() *time.Location
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options tunes the router.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	// Store is checked by /health when set.
	Store Pinger
}

type Server struct {
	accounts Accounts
	readings Readings
	sessions *middleware.SessionConfig
	views    *views
	logger   *zap.Logger
	opts     Options
}

func NewServer(accounts Accounts, readings Readings, sessions *middleware.SessionConfig, logger *zap.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}

	v, err := loadViews(readings.Location())
	if err != nil {
		return nil, err
	}

	return &Server{
		accounts: accounts,
		readings: readings,
		sessions: sessions,
		views:    v,
		logger:   logger,
		opts:     opts,
	}, nil
}

// Router sets up the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Get("/health", s.HandleHealth)
	r.Get("/register", s.HandleRegisterPage)
	r.Post("/register", s.HandleRegister)
	r.Get("/login", s.HandleLoginPage)
	r.Post("/login", s.HandleLogin)
	r.Get("/logout", s.HandleLogout)

	// Protected endpoints
	r.Group(func(r chi.Router) {
		r.Use(s.sessions.RequireAuth(s.accounts))

		r.Get("/", s.HandleIndex)
		r.Post("/", s.HandleCreateReading)
		r.Post("/bulk_upload", s.HandleBulkUpload)
		r.Post("/delete/{readingID}", s.HandleDeleteReading)
		r.Get("/plot", s.HandlePlot)
		r.Post("/delete_user/{userID}", s.HandleDeleteUser)
	})

	return r
}
