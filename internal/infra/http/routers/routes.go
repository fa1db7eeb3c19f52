package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"zapdesk/internal/infra/http/handlers"
	"zapdesk/internal/infra/http/middleware"
	"zapdesk/platform/config"
	"zapdesk/platform/logger"
)

// Dependencies holds everything the router needs wired in.
type Dependencies struct {
	Config    *config.Config
	Logger    *logger.Logger
	Health    *handlers.HealthHandler
	Instances *handlers.InstanceHandler
	Chatwoot  *handlers.ChatwootHandler
}

func SetupRoutes(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID(deps.Logger))
	r.Use(middleware.HTTPLogger(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.APIKeyAuth(deps.Config, deps.Logger))

	r.Get("/health", deps.Health.GetHealth)

	r.Route("/instances", func(r chi.Router) {
		r.Get("/", deps.Instances.ListInstances)

		r.Route("/{instance}", func(r chi.Router) {
			r.Delete("/", deps.Instances.DeleteInstance)
			r.Post("/connect", deps.Instances.ConnectInstance)
			r.Post("/disconnect", deps.Instances.DisconnectInstance)
			r.Post("/logout", deps.Instances.LogoutInstance)
			r.Get("/status", deps.Instances.GetStatus)
			r.Get("/qr", deps.Instances.GetQRCode)

			r.Route("/chatwoot", func(r chi.Router) {
				r.Post("/", deps.Chatwoot.CreateConfig)
				r.Get("/", deps.Chatwoot.GetConfig)
				r.Put("/", deps.Chatwoot.UpdateConfig)
				r.Delete("/", deps.Chatwoot.DeleteConfig)
				r.Post("/test", deps.Chatwoot.TestConnection)
			})
		})
	})

	// Chatwoot calls this endpoint directly; it is exempt from API key auth.
	r.Post("/chatwoot/webhook/{instance}", deps.Chatwoot.ReceiveWebhook)

	return r
}
