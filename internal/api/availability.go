/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/daisho-wakazashi/keybook/internal/auth"
	"github.com/daisho-wakazashi/keybook/internal/availability"
	"github.com/daisho-wakazashi/keybook/internal/models"
)

// maxIngestBody caps one availability submission.
const maxIngestBody = 1 << 20

type ingestResponse struct {
	Success bool               `json:"success"`
	Errors  []string           `json:"errors"`
	Created []models.TimeBlock `json:"created"`
	Skipped []string           `json:"skipped,omitempty"`
}

type weekResponse struct {
	From   time.Time          `json:"from"`
	To     time.Time          `json:"to"`
	Blocks []models.TimeBlock `json:"blocks"`
}

func (a *API) handleAvailabilityIngest(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	res := a.availability.Ingest(r.Context(), actor, extractBatch(body))

	status := http.StatusCreated
	if !res.Success() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, ingestResponse{
		Success: res.Success(),
		Errors:  resultErrors(res.Errors),
		Created: res.Created,
		Skipped: res.Skipped,
	})
}

// extractBatch accepts either the bare serialized list or a form-style
// envelope {"availabilities": "<serialized list>"}. Anything else is passed
// through so that the engine reports it as invalid data.
func extractBatch(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return string(trimmed)
	}

	var envelope struct {
		Availabilities json.RawMessage `json:"availabilities"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || len(envelope.Availabilities) == 0 {
		return string(trimmed)
	}

	var encoded string
	if err := json.Unmarshal(envelope.Availabilities, &encoded); err == nil {
		return encoded
	}
	return string(envelope.Availabilities)
}

func (a *API) handleAvailabilityWeek(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	loc := a.availability.Location()

	date := a.availability.Now().In(loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		date = parsed
	}

	blocks, err := a.availability.ListWeek(r.Context(), actor, date)
	if errors.Is(err, availability.ErrNotOwner) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("list availability failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	from, to := availability.WeekRange(date, loc)
	writeJSON(w, http.StatusOK, weekResponse{From: from, To: to, Blocks: blocks})
}
