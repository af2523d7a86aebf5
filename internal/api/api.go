/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/daisho-wakazashi/keybook/internal/auth"
	"github.com/daisho-wakazashi/keybook/internal/availability"
	"github.com/daisho-wakazashi/keybook/internal/booking"
	"github.com/daisho-wakazashi/keybook/internal/models"
)

// API exposes HTTP handlers.
type API struct {
	db           *gorm.DB
	jwtSecret    []byte
	tokenTTL     time.Duration
	users        *auth.Users
	availability *availability.Service
	booking      *booking.Service
	logger       zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, tokenTTL time.Duration, users *auth.Users, availabilitySvc *availability.Service, bookingSvc *booking.Service, logger zerolog.Logger) *API {
	return &API{
		db:           db,
		jwtSecret:    jwtSecret,
		tokenTTL:     tokenTTL,
		users:        users,
		availability: availabilitySvc,
		booking:      bookingSvc,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers API routes on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/availability", func(r chi.Router) {
				r.Use(requireRole(models.RoleOwner))
				r.Get("/", a.handleAvailabilityWeek)
				r.Post("/", a.handleAvailabilityIngest)
			})

			pr.Route("/blocks", func(r chi.Router) {
				r.Get("/", a.handleBlocksOpen)
				r.Get("/{blockID}", a.handleBlockGet)
				r.Post("/{blockID}/claim", a.handleBlockClaim)
			})

			pr.With(requireRole(models.RoleClaimant)).Get("/claims", a.handleClaimsList)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("health check: database unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	user, err := a.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.Issue(a.jwtSecret, auth.ClaimsFor(user), a.tokenTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("issue token failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(a.tokenTTL.Seconds()),
		"role":       user.Role,
	})
}

func requireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := auth.ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if actor.Role != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// resultErrors never serializes as null.
func resultErrors(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
