package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/xavim/fieldentry/internal/models"
	pkglogger "github.com/xavim/fieldentry/pkg/logger"
)

type loginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	account := s.store.Account(req.Username)
	if account == nil {
		s.logger.Info("login failed: unknown user")
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid username or password")
		return
	}
	if account.Disabled {
		writeError(w, http.StatusForbidden, "account_disabled", "Account is disabled")
		return
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(req.Password)); err != nil {
		s.logger.Info("login failed: invalid credentials",
			slog.String("username", pkglogger.SanitizedUsername(req.Username)))
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid username or password")
		return
	}
	if account.TOTPSecret != "" && !totp.Validate(req.TwoFactorCode, account.TOTPSecret) {
		writeError(w, http.StatusUnauthorized, "two_factor_required", "Missing or invalid two-factor code")
		return
	}

	token, expiresAt, err := s.tokens.Generate(account.Username)
	if err != nil {
		s.logger.Error("failed to issue token", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to issue token")
		return
	}

	s.logger.Info("user logged in", slog.String("username", pkglogger.SanitizedUsername(account.Username)))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if len(header) > len("Bearer ") {
		s.tokens.Revoke(header[len("Bearer "):])
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"username": requestUsername(r)})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"dataSets": s.store.Datasets()})
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	sections, ok := s.store.Sections(uid)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Dataset not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": sections})
}

func (s *Server) handleOrgUnits(w http.ResponseWriter, r *http.Request) {
	if !s.store.HasDataset(chi.URLParam(r, "uid")) {
		writeError(w, http.StatusNotFound, "not_found", "Dataset not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organisationUnits": s.store.OrgUnits()})
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.InstanceFilter{
		DatasetUID: q.Get("dataSet"),
		OrgUnitUID: q.Get("orgUnit"),
		PeriodID:   q.Get("period"),
		State:      models.InstanceState(q.Get("state")),
	}
	writeJSON(w, http.StatusOK, map[string]any{"completeDataSetRegistrations": s.store.Instances(filter)})
}

type completeRequest struct {
	models.InstanceKey
	CompletedBy string `json:"completedBy,omitempty"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	completedBy := req.CompletedBy
	if completedBy == "" {
		completedBy = requestUsername(r)
	}
	if err := s.store.Complete(req.InstanceKey, completedBy); err != nil {
		writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	key := keyFromQuery(r)
	if err := s.store.Reopen(key); err != nil {
		writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetValues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"dataValues": s.store.Values(keyFromQuery(r))})
}

type valueSetRequest struct {
	models.InstanceKey
	DataValues []models.DataValue `json:"dataValues"`
}

func (s *Server) handlePostValues(w http.ResponseWriter, r *http.Request) {
	var req valueSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	storedBy := requestUsername(r)
	for i := range req.DataValues {
		if req.DataValues[i].StoredBy == "" {
			req.DataValues[i].StoredBy = storedBy
		}
		if req.DataValues[i].LastUpdated.IsZero() {
			req.DataValues[i].LastUpdated = time.Now().UTC()
		}
	}

	s.store.PutValues(req.InstanceKey, req.DataValues)
	w.WriteHeader(http.StatusOK)
}

func keyFromQuery(r *http.Request) models.InstanceKey {
	q := r.URL.Query()
	return models.InstanceKey{
		DatasetUID:     q.Get("dataSet"),
		PeriodID:       q.Get("period"),
		OrgUnitUID:     q.Get("orgUnit"),
		AttributeCombo: q.Get("attributeOptionCombo"),
	}
}
