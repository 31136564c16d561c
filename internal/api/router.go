package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/isdelr/turbinix-be/internal/api/handlers"
	"github.com/isdelr/turbinix-be/internal/metrics"
	"github.com/isdelr/turbinix-be/internal/services"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Users        services.UserServiceProvider
	Verification services.VerificationServiceProvider
	Entries      services.EntryServiceProvider
	Events       services.EventServiceProvider
	Metrics      *metrics.Metrics

	CORSOrigins []string
	// VerboseErrors echoes internal error text in 500 responses.
	VerboseErrors bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(deps.Users, deps.VerboseErrors)
	verificationHandler := handlers.NewVerificationHandler(deps.Verification, deps.VerboseErrors)
	entryHandler := handlers.NewEntryHandler(deps.Entries, deps.VerboseErrors)
	eventHandler := handlers.NewEventHandler(deps.Events, deps.VerboseErrors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		r.Get("/check-username/{username}", userHandler.CheckUsername)
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)

		r.Post("/send-code", verificationHandler.SendCode)
		r.Post("/verify-code", verificationHandler.VerifyCode)
		r.Post("/request-reset-code", verificationHandler.RequestResetCode)
		r.Post("/reset-password", verificationHandler.ResetPassword)

		r.Route("/entries/{user}", func(r chi.Router) {
			r.Get("/", entryHandler.List)
			r.Post("/", entryHandler.Create)
			r.Put("/{ref}", entryHandler.Update)
			r.Delete("/{ref}", entryHandler.Delete)
		})

		r.Get("/events", eventHandler.GetRecent)
	})

	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	return r
}
