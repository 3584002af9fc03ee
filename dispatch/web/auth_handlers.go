package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"go.fieldcore.build/dispatch/apperr"
	"go.fieldcore.build/dispatch/auth"
	"go.fieldcore.build/dispatch/schema"
	"go.fieldcore.build/go/httputils"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	ctx := r.Context()
	var userID, passwordHash, role string
	var companyID *string
	err := s.gateway.Pool().QueryRow(ctx, `
		SELECT user_id, password_hash, role, company_id FROM users
		WHERE email=$1 AND deleted_at IS NULL`, req.Email).
		Scan(&userID, &passwordHash, &role, &companyID)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)) != nil {
		handleError(w, r, apperr.Auth("invalid email or password"))
		return
	}
	u := auth.AuthUser{UserID: userID, Role: role}
	if companyID != nil {
		u.CompanyID = *companyID
	}
	token, err := s.issuer.Issue(u)
	if err != nil {
		handleError(w, r, err)
		return
	}
	httputils.WriteJSON(w, loginResponse{Token: token, UserID: userID, Role: role, CompanyID: u.CompanyID}, http.StatusOK)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	CompanyID string `json:"companyId"`
	Role      string `json:"role"`
}

// handleRegister creates a User under an existing company. Only the
// platform's onboarding flow (handleOnboard) creates the first admin of a
// brand new company.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	if req.Email == "" || req.Password == "" || req.CompanyID == "" {
		handleError(w, r, apperr.Validation("email, password, and companyId are required"))
		return
	}
	if !validRole(req.Role) {
		handleError(w, r, apperr.Validation("unknown role %q", req.Role))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var userID string
	err = s.gateway.Pool().QueryRow(r.Context(), `
		INSERT INTO users (company_id, email, password_hash, role)
		VALUES ($1, $2, $3, $4) RETURNING user_id`,
		req.CompanyID, req.Email, string(hash), req.Role).Scan(&userID)
	if err != nil {
		handleError(w, r, apperr.Validation("email already registered"))
		return
	}
	httputils.WriteJSON(w, map[string]string{"userId": userID}, http.StatusCreated)
}

type onboardRequest struct {
	CompanyName string `json:"companyName"`
	Timezone    string `json:"timezone"`
	AdminEmail  string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

// handleOnboard creates a new Company and its first admin User in one
// transaction (spec.md §4.9: company creation is platform-initiated, but
// this endpoint is the self-serve path a new tenant signs up through).
func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	if req.CompanyName == "" || req.Timezone == "" || req.AdminEmail == "" || req.AdminPassword == "" {
		handleError(w, r, apperr.Validation("companyName, timezone, adminEmail, and adminPassword are required"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		handleError(w, r, err)
		return
	}
	ctx := r.Context()
	tx, err := s.gateway.Pool().Begin(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	defer tx.Rollback(ctx)

	var companyID string
	if err := tx.QueryRow(ctx, `
		INSERT INTO companies (name, timezone) VALUES ($1, $2) RETURNING company_id`,
		req.CompanyName, req.Timezone).Scan(&companyID); err != nil {
		handleError(w, r, err)
		return
	}
	var userID string
	if err := tx.QueryRow(ctx, `
		INSERT INTO users (company_id, email, password_hash, role)
		VALUES ($1, $2, $3, $4) RETURNING user_id`,
		companyID, req.AdminEmail, string(hash), schema.RoleAdmin).Scan(&userID); err != nil {
		handleError(w, r, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	httputils.WriteJSON(w, map[string]string{"companyId": companyID, "userId": userID}, http.StatusCreated)
}

func validRole(role string) bool {
	switch role {
	case schema.RolePlatform, schema.RoleAdmin, schema.RoleTechnician, schema.RoleDispatcher:
		return true
	}
	return false
}

func (s *Server) handleIssueETA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"jobId"`
	}
	if err := httputils.ParseJSON(r, &req); err != nil {
		handleError(w, r, apperr.Validation("malformed request body"))
		return
	}
	u, _ := authUserFrom(r)
	var companyID string
	if err := s.gateway.Pool().QueryRow(r.Context(), `SELECT company_id FROM jobs WHERE job_id=$1`, req.JobID).Scan(&companyID); err != nil {
		handleError(w, r, apperr.NotFound("job %s not found", req.JobID))
		return
	}
	if err := checkTenant(u, companyID); err != nil {
		handleError(w, r, err)
		return
	}
	token, err := s.eta.Issue(req.JobID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	httputils.WriteJSON(w, map[string]string{"token": token}, http.StatusOK)
}

// handleGetETA is the public (unauthenticated) route a customer's tracking
// link resolves to.
func (s *Server) handleGetETA(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	jobID, err := s.eta.Verify(token)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var status string
	var techLat, techLng *float64
	err = s.gateway.Pool().QueryRow(r.Context(), `
		SELECT j.status, e.current_lat, e.current_lng
		FROM jobs j LEFT JOIN employees e ON e.employee_id = j.assigned_tech_id
		WHERE j.job_id=$1`, jobID).Scan(&status, &techLat, &techLng)
	if err != nil {
		handleError(w, r, apperr.NotFound("job not found"))
		return
	}
	resp := map[string]interface{}{"status": status}
	if techLat != nil && techLng != nil {
		resp["technicianLat"] = *techLat
		resp["technicianLng"] = *techLng
	}
	httputils.WriteJSON(w, resp, http.StatusOK)
}

// handleSMSInbound is the inbound webhook an SMS provider posts customer
// replies to (e.g. "C" to confirm an appointment, "STOP" to opt out). The
// concrete provider and parsing format are out of scope (spec.md
// Non-goals); this endpoint simply accepts and acknowledges receipt.
func (s *Server) handleSMSInbound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
