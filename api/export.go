/*
export.go - Monthly CSV export of approved requests

PURPOSE:
  Produces the accounting export: every APPROVED_ADMIN request starting
  in the given month, one row per request, in a fixed column order the
  downstream payroll import depends on.

COLUMN ORDER (fixed, do not reorder):
  #, lastname, firstname, from, to, number, type, label, message
*/
package api

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

var exportHeader = []string{"#", "lastname", "firstname", "from", "to", "number", "type", "label", "message"}

// ExportMonth writes the CSV export for /api/export/{year}/{month}.
func (h *Handler) ExportMonth(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	ctx := r.Context()
	requests, err := h.Store.RequestsApprovedInMonth(ctx, year, time.Month(month))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load requests", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="export_%04d_%02d.csv"`, year, month))

	cw := csv.NewWriter(w)
	cw.Write(exportHeader)
	for i := range requests {
		req := &requests[i]
		lastname, firstname := req.UserID, ""
		if user, lookupErr := h.Store.GetUser(ctx, req.UserID); lookupErr == nil {
			lastname, firstname = user.Lastname, user.Firstname
		}
		cw.Write([]string{
			strconv.Itoa(i + 1),
			lastname,
			firstname,
			req.DateFrom.Format("02/01/2006"),
			req.DateTo.Format("02/01/2006"),
			req.Days.String(),
			req.Type,
			string(req.Label),
			req.Message,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		// Headers are already sent; nothing left to do but log.
		log.Printf("[Export] write failed: %v", err)
	}
}
