package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pmsgw/internal/model"
	"pmsgw/internal/store"
	"pmsgw/internal/webhooks"
)

type saveConfigRequest struct {
	Vendor     string `json:"vendor"`
	APIKey     string `json:"apiKey"`
	PropertyID string `json:"propertyId"`
	APIVersion string `json:"apiVersion,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
}

// SaveConfigHandler upserts the caller tenant's PMS connection. The API key
// is sealed before it touches the store and never appears in responses.
func (s *Server) SaveConfigHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeProblem(w, http.StatusBadRequest, "Missing tenant", "X-Tenant-Id header required", r.URL.Path)
		return
	}
	var req saveConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	vendor, err := model.ParseVendor(req.Vendor)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid vendor", err.Error(), r.URL.Path)
		return
	}
	if req.APIKey == "" {
		writeProblem(w, http.StatusBadRequest, "Missing apiKey", "", r.URL.Path)
		return
	}
	sealed, err := s.Box.Seal(req.APIKey)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Credential sealing failed", err.Error(), r.URL.Path)
		return
	}
	cfg, err := s.Store.SaveConfiguration(r.Context(), store.SaveConfigurationInput{
		TenantID:         tenant,
		Vendor:           vendor,
		SealedCredential: sealed,
		PropertyID:       req.PropertyID,
		APIVersion:       req.APIVersion,
		Endpoint:         req.Endpoint,
	})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
		return
	}
	s.Log.Info("pms configuration saved",
		zap.String("tenant_id", tenant), zap.String("vendor", string(vendor)))
	writeJSON(w, http.StatusOK, cfg)
}

// GetConfigHandler returns connection status/metadata only.
func (s *Server) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeProblem(w, http.StatusBadRequest, "Missing tenant", "X-Tenant-Id header required", r.URL.Path)
		return
	}
	cfg, err := s.Store.GetConfiguration(r.Context(), tenant)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no PMS configuration for tenant", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// DisconnectHandler clears the credential and marks the tenant
// DISCONNECTED.
func (s *Server) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeProblem(w, http.StatusBadRequest, "Missing tenant", "X-Tenant-Id header required", r.URL.Path)
		return
	}
	err := s.Store.Disconnect(r.Context(), tenant)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no PMS configuration for tenant", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Disconnect failed", err.Error(), r.URL.Path)
		return
	}
	s.Log.Info("pms configuration disconnected", zap.String("tenant_id", tenant))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// SyncHandler triggers a synchronous sync pass for the caller's tenant.
func (s *Server) SyncHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeProblem(w, http.StatusBadRequest, "Missing tenant", "X-Tenant-Id header required", r.URL.Path)
		return
	}
	cfg, err := s.Store.GetConfiguration(r.Context(), tenant)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no PMS configuration for tenant", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
		return
	}
	if cfg.Status == model.StatusDisconnected {
		writeProblem(w, http.StatusConflict, "Not connected", "tenant PMS is disconnected", r.URL.Path)
		return
	}
	if err := s.Syncer.SyncTenant(r.Context(), cfg); err != nil {
		writeProblem(w, http.StatusBadGateway, "Sync failed", err.Error(), r.URL.Path)
		return
	}
	updated, err := s.Store.GetConfiguration(r.Context(), tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeadLettersHandler lists unprocessed webhook events kept for replay.
func (s *Server) DeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := s.Store.ListDeadLetters(r.Context(), r.URL.Query().Get("vendor"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// RequeueDeadLetterHandler replays one dead letter against the current
// configuration. If no tenant matches yet, the letter goes back into the
// buffer.
func (s *Server) RequeueDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dl, err := s.Store.TakeDeadLetter(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no such dead letter", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Requeue failed", err.Error(), r.URL.Path)
		return
	}
	outcome := s.Receiver.Process(r.Context(), dl.Vendor, dl.Payload)
	if outcome == webhooks.OutcomeNoTenant {
		if _, err := s.Store.AddDeadLetter(r.Context(), dl); err != nil {
			s.Log.Error("dead-letter restore failed", zap.String("id", dl.ID), zap.Error(err))
		}
		writeProblem(w, http.StatusConflict, "No connected tenant", "still no CONNECTED configuration for vendor", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "outcome": outcome})
}
