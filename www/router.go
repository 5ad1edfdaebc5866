package www

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/rs/cors"

	"github.com/sahilp2023/agrocyle-sub001/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
}

func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	webCfg := eng.AppConfig().Web
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(webCfg.SessionSecret),
		eventHub: hub,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	h.ensureDefaultAdmin(ctx, eng.DB())
	cancel()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   webCfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", headerRole, headerID},
		AllowCredentials: true,
	}).Handler)

	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.requireAuth).Get("/events", hub.SSEHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)

		// Hub staff only
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/me", h.apiMe)
			r.Get("/audit", h.apiListAudit)
			r.Post("/hubs", h.apiCreateHub)
			r.Post("/messaging/reconnect", h.apiReconnectMessaging)
		})

		// Any principal; the orchestrator decides what each role may do
		r.Group(func(r chi.Router) {
			r.Use(h.withPrincipal)

			r.Get("/hubs", h.apiListHubs)

			r.Get("/requests", h.apiListRequests)
			r.Post("/requests", h.apiCreateRequest)
			r.Get("/requests/{id}", h.apiGetRequest)
			r.Post("/requests/{id}/confirm", h.apiConfirmRequest)
			r.Post("/requests/{id}/start", h.apiStartRequest)
			r.Post("/requests/{id}/cancel", h.apiCancelRequest)
			r.Post("/requests/{id}/reschedule", h.apiRescheduleRequest)

			r.Get("/assignments", h.apiListAssignments)
			r.Post("/assignments", h.apiCreateAssignment)
			r.Get("/assignments/{id}", h.apiGetAssignment)
			r.Patch("/assignments/{id}", h.apiUpdateAssignment)
			r.Get("/assignments/{id}/history", h.apiAssignmentHistory)
			r.Post("/assignments/{id}/transition", h.apiTransition)

			r.Get("/operators", h.apiListOperators)
			r.Post("/operators", h.apiRegisterOperator)
			r.Get("/operators/nearby", h.apiNearbyOperators)
			r.Get("/operators/{id}", h.apiGetOperator)
			r.Post("/operators/{id}/verify", h.apiSetOperatorVerified)
			r.Post("/operators/{id}/active", h.apiSetOperatorActive)
			r.Post("/operators/{id}/presence", h.apiOperatorPresence)
			r.Get("/operators/{id}/presence", h.apiGetPresence)
		})
	})

	stopFn := func() {
		hub.Stop()
	}

	return r, stopFn
}
