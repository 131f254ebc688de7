/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    GET    /api/users                     List all users
    GET    /api/users/{id}                Get user details
    GET    /api/users/{id}/balances       Per-type balance summary

  Requests:
    POST   /api/requests                  Submit a leave request
    GET    /api/requests                  List requests (filters below)
    GET    /api/requests/{id}             Get one request
    GET    /api/requests/{id}/history     Transition audit trail
    POST   /api/requests/{id}/accept      Manager/admin approval
    POST   /api/requests/{id}/refuse      Denial with reason
    POST   /api/requests/{id}/cancel      Cancellation

  Export:
    GET    /api/export/{year}/{month}     Approved requests as CSV

REQUEST FLOW:
  1. Parse HTTP request
  2. Call domain logic (request service, state machine, ledger)
  3. Serialize response
  4. Map domain errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input (message is user-facing)
  - 403: Actor not allowed to perform the action
  - 404: Resource not found
  - 409: Conflict (overlapping request, invalid transition)
  - 500: Internal errors

SECURITY NOTE:
  The actor is taken from the request body, not from an authenticated
  session. Deployments front this with an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - export.go: CSV export
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/request"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    leave.TxStore
	Requests *request.Service
	Machine  *request.Machine

	// CalendarURL is the shared team calendar passed to the sudo and
	// cancel paths. Empty disables calendar sync on those paths.
	CalendarURL string

	Now func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(store leave.TxStore, svc *request.Service, machine *request.Machine, calendarURL string) *Handler {
	return &Handler{
		Store:       store,
		Requests:    svc,
		Machine:     machine,
		CalendarURL: calendarURL,
		Now:         time.Now,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i := range users {
		dtos[i] = toUserDTO(&users[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// GetBalances returns the user's balance for every vacation type
// available in their country and visible to their role.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.Store.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	types, err := h.Store.ListVacationTypes(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list vacation types", err)
		return
	}

	balances := []BalanceDTO{}
	asOf := h.Now()
	for _, vt := range types {
		if !vt.AvailableIn(user.Country) || !vt.VisibleTo(user.Role) {
			continue
		}
		snap, err := ledger.Snapshot(ctx, h.Store, user.ID, vt.Name, user.Country, asOf)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
			return
		}
		balances = append(balances, toBalanceDTO(vt.Name, snap))
	}
	writeJSON(w, http.StatusOK, balances)
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitRequest creates a leave request. When sudo_user_id names an
// admin the request is created on behalf of user_id, pre-approved.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	dateFrom, err := time.Parse("2006-01-02", body.DateFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_from format (use YYYY-MM-DD)", err)
		return
	}
	dateTo, err := time.Parse("2006-01-02", body.DateTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_to format (use YYYY-MM-DD)", err)
		return
	}

	in := request.SubmitInput{
		UserID:   body.UserID,
		Type:     body.Type,
		DateFrom: dateFrom,
		DateTo:   dateTo,
		Label:    leave.HalfDay(body.Label),
		Message:  body.Message,
	}

	var req *leave.Request
	if body.SudoUserID != "" {
		admin, lookupErr := h.Store.GetUser(r.Context(), body.SudoUserID)
		if lookupErr != nil {
			writeDomainError(w, lookupErr)
			return
		}
		req, err = h.Requests.SubmitFor(r.Context(), admin, h.CalendarURL, in)
	} else {
		req, err = h.Requests.Submit(r.Context(), in)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// ListRequests returns requests filtered by user_id, manager_id or
// status query parameters. Exactly one filter applies; user_id wins.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		requests []leave.Request
		err      error
	)
	switch {
	case r.URL.Query().Get("user_id") != "":
		requests, err = h.Requests.ByUser(ctx, r.URL.Query().Get("user_id"))
	case r.URL.Query().Get("manager_id") != "":
		requests, err = h.Requests.ByManager(ctx, r.URL.Query().Get("manager_id"))
	case r.URL.Query().Get("status") != "":
		requests, err = h.Requests.ByStatus(ctx, leave.RequestStatus(r.URL.Query().Get("status")))
	default:
		writeError(w, http.StatusBadRequest, "Provide a user_id, manager_id or status filter", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Store.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// GetRequestHistory returns the transition audit trail for a request.
func (h *Handler) GetRequestHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Requests.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history", err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTOs(history))
}

// AcceptRequest moves a request forward in the approval flow.
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req string, actor *leave.User, _ string) (*leave.Request, error) {
		return h.Machine.Accept(r.Context(), req, actor)
	})
}

// RefuseRequest denies a request with a reason.
func (h *Handler) RefuseRequest(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req string, actor *leave.User, reason string) (*leave.Request, error) {
		return h.Machine.Refuse(r.Context(), req, actor, reason)
	})
}

// CancelRequest cancels a request.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(req string, actor *leave.User, _ string) (*leave.Request, error) {
		return h.Machine.Cancel(r.Context(), req, actor, h.CalendarURL)
	})
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(requestID string, actor *leave.User, reason string) (*leave.Request, error)) {
	var body ActionDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor, err := h.Store.GetUser(r.Context(), body.ActorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	req, err := fn(chi.URLParam(r, "id"), actor, body.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the domain error taxonomy to HTTP statuses.
// Validation messages are user-facing and returned verbatim.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leave.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, leave.ErrConflict), errors.Is(err, leave.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, leave.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, leave.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
