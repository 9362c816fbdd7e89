// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package api exposes the backup subsystem over HTTP: backup CRUD, upload
// and download, restore, schedule management, run-now, and the token-gated
// cron trigger endpoints.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/validation"
)

// APIResponse is the envelope every endpoint returns.
//
// Status is "success" or "error"; Error is populated only on "error".
type APIResponse struct {
	Status   string               `json:"status"`
	Data     interface{}          `json:"data"`
	Metadata Metadata             `json:"metadata"`
	Error    *validation.APIError `json:"error,omitempty"`
}

// Metadata carries response provenance.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// sanitizeLogValue strips control characters so request-derived strings
// cannot forge log entries.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a success envelope.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	writeEnvelope(w, status, &APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondError sends an error envelope with a stable code and a human
// message, never a raw stack trace.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().
			Str("code", sanitizeLogValue(code)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	writeEnvelope(w, status, &APIResponse{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    &validation.APIError{Code: code, Message: message},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// errorWriter adapts respondError to the auth middleware's signature.
func errorWriter(w http.ResponseWriter, status int, code, message string) {
	respondError(w, status, code, message, nil)
}

// decodeJSON reads a request body into v, rejecting unknown garbage early.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close() //nolint:errcheck
	return json.NewDecoder(r.Body).Decode(v)
}
