/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO represents an employee in API responses.
type UserDTO struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	Firstname   string `json:"firstname"`
	Lastname    string `json:"lastname"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Role        string `json:"role"`
	ManagerID   string `json:"manager_id,omitempty"`
	ArrivalDate string `json:"arrival_date,omitempty"`
}

// SubmitRequestDTO is the body for POST /api/requests.
type SubmitRequestDTO struct {
	UserID   string `json:"user_id"`
	Type     string `json:"type"`
	DateFrom string `json:"date_from"` // YYYY-MM-DD
	DateTo   string `json:"date_to"`   // YYYY-MM-DD
	Label    string `json:"label,omitempty"`
	Message  string `json:"message,omitempty"`

	// Sudo path: an admin submits on behalf of UserID.
	SudoUserID string `json:"sudo_user_id,omitempty"`
}

// ActionDTO is the body for accept/refuse/cancel actions.
type ActionDTO struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

// RequestDTO represents a leave request in API responses.
type RequestDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
	Days      string `json:"days"`
	Label     string `json:"label,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Notified  bool   `json:"notified"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// HistoryDTO represents one state transition in API responses.
type HistoryDTO struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	PrevStatus string `json:"prev_status,omitempty"`
	NewStatus  string `json:"new_status"`
	ActorID    string `json:"actor_id"`
	At         string `json:"at"`
	Reason     string `json:"reason,omitempty"`
	Automatic  bool   `json:"automatic"`
}

// BalanceDTO is one vacation type's balance for a user.
type BalanceDTO struct {
	Type    string           `json:"type"`
	Total   string           `json:"total"`
	Pools   []BalancePoolDTO `json:"pools,omitempty"`
	TakenAt string           `json:"taken_at"`
}

// BalancePoolDTO is one pool's contribution to a balance.
type BalancePoolDTO struct {
	Pool      string `json:"pool"`
	Amount    string `json:"amount"`
	DateStart string `json:"date_start"`
	DateEnd   string `json:"date_end"`
}

// ErrorResponse is the error body returned on failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRequestDTO(r *leave.Request) RequestDTO {
	return RequestDTO{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      r.Type,
		DateFrom:  r.DateFrom.Format("2006-01-02"),
		DateTo:    r.DateTo.Format("2006-01-02"),
		Days:      r.Days.String(),
		Label:     string(r.Label),
		Status:    string(r.Status),
		Message:   r.Message,
		Reason:    r.Reason,
		Notified:  r.Notified,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}

func toRequestDTOs(requests []leave.Request) []RequestDTO {
	dtos := make([]RequestDTO, len(requests))
	for i := range requests {
		dtos[i] = toRequestDTO(&requests[i])
	}
	return dtos
}

func toHistoryDTOs(history []leave.RequestHistory) []HistoryDTO {
	dtos := make([]HistoryDTO, len(history))
	for i, h := range history {
		dtos[i] = HistoryDTO{
			ID:         h.ID,
			RequestID:  h.RequestID,
			PrevStatus: string(h.PrevStatus),
			NewStatus:  string(h.NewStatus),
			ActorID:    h.ActorID,
			At:         h.At.Format(time.RFC3339),
			Reason:     h.Reason,
			Automatic:  h.Automatic,
		}
	}
	return dtos
}

func toUserDTO(u *leave.User) UserDTO {
	dto := UserDTO{
		ID:        u.ID,
		Login:     u.Login,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		Email:     u.Email,
		Country:   string(u.Country),
		Role:      string(u.Role),
		ManagerID: u.ManagerID,
	}
	if !u.ArrivalDate.IsZero() {
		dto.ArrivalDate = u.ArrivalDate.Format("2006-01-02")
	}
	return dto
}

func toBalanceDTO(vacationType string, snap leave.PoolSnapshot) BalanceDTO {
	dto := BalanceDTO{
		Type:    vacationType,
		Total:   snap.Total().String(),
		TakenAt: snap.TakenAt.Format(time.RFC3339),
	}
	for _, e := range snap.Pools {
		dto.Pools = append(dto.Pools, BalancePoolDTO{
			Pool:      e.PoolName,
			Amount:    e.Amount.String(),
			DateStart: e.DateStart.Format("2006-01-02"),
			DateEnd:   e.DateEnd.Format("2006-01-02"),
		})
	}
	return dto
}
