/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daisho-wakazashi/keybook/internal/auth"
	"github.com/daisho-wakazashi/keybook/internal/booking"
	"github.com/daisho-wakazashi/keybook/internal/models"
)

// defaultOpenWindow is how far ahead the open-block listing looks by default.
const defaultOpenWindow = 7 * 24 * time.Hour

type claimResponse struct {
	Success bool            `json:"success"`
	Outcome booking.Outcome `json:"outcome"`
	Errors  []string        `json:"errors"`
	Claim   *models.Claim   `json:"claim,omitempty"`
}

// outcomeStatus maps allocation outcomes to HTTP status codes.
var outcomeStatus = map[booking.Outcome]int{
	booking.OutcomeClaimed:        http.StatusCreated,
	booking.OutcomeRoleRejected:   http.StatusForbidden,
	booking.OutcomeNotFound:       http.StatusNotFound,
	booking.OutcomeAlreadyClaimed: http.StatusConflict,
	booking.OutcomeRetryable:      http.StatusServiceUnavailable,
	booking.OutcomeInvalid:        http.StatusUnprocessableEntity,
	booking.OutcomeDBError:        http.StatusInternalServerError,
}

func (a *API) handleBlockClaim(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	blockID := chi.URLParam(r, "blockID")

	res := a.booking.Allocate(r.Context(), actor, blockID)

	status, ok := outcomeStatus[res.Outcome]
	if !ok {
		status = http.StatusInternalServerError
	}
	if res.Outcome == booking.OutcomeRetryable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, claimResponse{
		Success: res.Success(),
		Outcome: res.Outcome,
		Errors:  resultErrors(res.Errors),
		Claim:   res.Claim,
	})
}

func (a *API) handleBlocksOpen(w http.ResponseWriter, r *http.Request) {
	from := time.Now().UTC()
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := parseQueryTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		from = parsed
	}
	to := from.Add(defaultOpenWindow)
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := parseQueryTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to")
			return
		}
		to = parsed
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	blocks, err := a.booking.ListOpen(r.Context(), from, to)
	if err != nil {
		a.logger.Error().Err(err).Msg("list open blocks failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (a *API) handleBlockGet(w http.ResponseWriter, r *http.Request) {
	block, err := a.booking.Get(r.Context(), chi.URLParam(r, "blockID"))
	if errors.Is(err, booking.ErrBlockNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get block failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (a *API) handleClaimsList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	claims, err := a.booking.ListClaims(r.Context(), actor.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("list claims failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// parseQueryTime accepts RFC3339 or a bare date (UTC midnight).
func parseQueryTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}
