/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger, bulk runner and year-end
  aggregator.

ENDPOINTS:
  Employees:
    GET    /api/employees                       List employees (?status=active)
    POST   /api/employees                       Create employee
    GET    /api/employees/{id}                  Get employee with YTD
    PUT    /api/employees/{id}                  Replace profile (YTD untouched)
    DELETE /api/employees/{id}                  Delete an unpaid employee
    POST   /api/employees/{id}/ytd/rollover     Start counters for a new year

  Deductions:
    GET    /api/employees/{id}/deductions       List (?active=true)
    POST   /api/employees/{id}/deductions       Create
    DELETE /api/deductions/{id}                 Deactivate

  Paystubs:
    POST   /api/employees/{id}/paystubs         Generate and persist
    POST   /api/employees/{id}/paystubs/preview Compute without saving
    GET    /api/employees/{id}/paystubs         History (?year=, ?format=csv)
    GET    /api/paystubs/{id}                   Get one
    GET    /api/paystubs/{id}/pdf               Printable stub

  Payroll runs:
    POST   /api/payroll/runs                    Pay a period for many employees

  Year end:
    GET    /api/employees/{id}/year-end/{year}  W-2 style summary
    GET    /api/year-end/{year}                 Every paid employee (?format=csv)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate paystub, employee already paid)
  - 422: Computed paystub violates an invariant (negative net, ...)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Put this behind a gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/warp/payroll-engine/export"
	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      payroll.Store
	Ledger     *ledger.Ledger
	Bulk       *ledger.BulkRunner
	Aggregator *ledger.Aggregator

	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewHandler wires the handlers. A nil logger means slog.Default().
func NewHandler(store payroll.Store, l *ledger.Ledger, bulk *ledger.BulkRunner, agg *ledger.Aggregator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:      store,
		Ledger:     l,
		Bulk:       bulk,
		Aggregator: agg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Health reports whether the process is serving.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns employees ordered by id.
// GET /api/employees?status=active
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	var filter *payroll.EmployeeStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := payroll.ParseEmployeeStatus(s)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		filter = &status
	}

	employees, err := h.Store.ListEmployees(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee adds an employee. An id is generated when none is given.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := req.ID
	if id == "" {
		id = h.newID()
	}
	emp, err := req.toEmployee(payroll.EmployeeID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.Store.GetEmployee(r.Context(), emp.ID); err == nil {
		writeError(w, http.StatusConflict, "Employee already exists", nil)
		return
	} else if !errors.Is(err, payroll.ErrEmployeeNotFound) {
		h.writeDomainError(w, r, err)
		return
	}

	if err := h.Store.UpsertEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.respondEmployee(w, r, emp.ID, http.StatusCreated)
}

// GetEmployee returns one employee with YTD counters.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	h.respondEmployee(w, r, employeeIDParam(r), http.StatusOK)
}

// UpdateEmployee replaces an existing profile.
// PUT /api/employees/{id}
func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id := employeeIDParam(r)
	if _, err := h.Store.GetEmployee(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var req EmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	emp, err := req.toEmployee(id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.UpsertEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.respondEmployee(w, r, id, http.StatusOK)
}

// DeleteEmployee removes an employee who has never been paid.
// DELETE /api/employees/{id}
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteEmployee(r.Context(), employeeIDParam(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RolloverYTD resets an employee's counters for a later tax year.
// POST /api/employees/{id}/ytd/rollover
func (h *Handler) RolloverYTD(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := employeeIDParam(r)
	if err := h.Store.RolloverYTD(r.Context(), id, req.Year); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("ytd rolled over", "employee_id", id, "year", req.Year)
	h.respondEmployee(w, r, id, http.StatusOK)
}

func (h *Handler) respondEmployee(w http.ResponseWriter, r *http.Request, id payroll.EmployeeID, status int) {
	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, toEmployeeDTO(emp))
}

// =============================================================================
// DEDUCTION HANDLERS
// =============================================================================

// ListDeductions returns an employee's deductions in creation order.
// GET /api/employees/{id}/deductions?active=true
func (h *Handler) ListDeductions(w http.ResponseWriter, r *http.Request) {
	id := employeeIDParam(r)
	if _, err := h.Store.GetEmployee(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	deds, err := h.Store.ListDeductions(r.Context(), id, activeOnly)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]DeductionDTO, len(deds))
	for i, d := range deds {
		dtos[i] = toDeductionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDeduction adds an active recurring deduction.
// POST /api/employees/{id}/deductions
func (h *Handler) CreateDeduction(w http.ResponseWriter, r *http.Request) {
	var req DeductionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	typ, err := payroll.ParseDeductionType(req.Type)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	d := payroll.Deduction{
		ID:           payroll.DeductionID(h.newID()),
		EmployeeID:   employeeIDParam(r),
		Type:         typ,
		Amount:       req.Amount,
		IsPercentage: req.IsPercentage,
		Description:  req.Description,
		Active:       true,
		CreatedAt:    h.now(),
	}
	if err := h.Store.SaveDeduction(r.Context(), d); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeductionDTO(d))
}

// DeactivateDeduction stops a deduction from applying to future paystubs.
// DELETE /api/deductions/{id}
func (h *Handler) DeactivateDeduction(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeactivateDeduction(r.Context(), payroll.DeductionID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYSTUB HANDLERS
// =============================================================================

// GeneratePaystub computes and persists one paystub.
// POST /api/employees/{id}/paystubs
func (h *Handler) GeneratePaystub(w http.ResponseWriter, r *http.Request) {
	var req GeneratePaystubRequest
	if !decodeBody(w, r, &req) {
		return
	}
	period, err := req.toPeriod()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	emp, err := h.Store.GetEmployee(r.Context(), employeeIDParam(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	stub, err := h.Ledger.GeneratePaystub(r.Context(), emp, period, req.Hours.toHours())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaystubDTO(stub))
}

// PreviewPaystub computes a paystub without saving it.
// POST /api/employees/{id}/paystubs/preview
func (h *Handler) PreviewPaystub(w http.ResponseWriter, r *http.Request) {
	var req GeneratePaystubRequest
	if !decodeBody(w, r, &req) {
		return
	}
	period, err := req.toPeriod()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	c, err := h.Ledger.Preview(r.Context(), employeeIDParam(r), period, req.Hours.toHours())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(c))
}

// ListPaystubs returns an employee's paystubs by pay date.
// GET /api/employees/{id}/paystubs?year=2024&format=csv
func (h *Handler) ListPaystubs(w http.ResponseWriter, r *http.Request) {
	id := employeeIDParam(r)
	year, err := optionalYear(r.URL.Query().Get("year"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.Store.GetEmployee(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	stubs, err := h.Store.ListPaystubs(r.Context(), id, year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if wantsCSV(r) {
		var buf bytes.Buffer
		if err := export.WritePaystubsCSV(&buf, stubs); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeAttachment(w, "text/csv", fmt.Sprintf("paystubs-%s.csv", id), buf.Bytes())
		return
	}
	writeJSON(w, http.StatusOK, toPaystubDTOs(stubs))
}

// GetPaystub returns one paystub.
// GET /api/paystubs/{id}
func (h *Handler) GetPaystub(w http.ResponseWriter, r *http.Request) {
	stub, err := h.Store.GetPaystub(r.Context(), payroll.PaystubID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaystubDTO(stub))
}

// GetPaystubPDF renders one paystub as a PDF.
// GET /api/paystubs/{id}/pdf
func (h *Handler) GetPaystubPDF(w http.ResponseWriter, r *http.Request) {
	stub, err := h.Store.GetPaystub(r.Context(), payroll.PaystubID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WritePaystubPDF(&buf, stub); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeAttachment(w, "application/pdf", stub.CheckRef()+".pdf", buf.Bytes())
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

// RunPayroll pays one period for the listed employees, or for every active
// employee when none are listed.
// POST /api/payroll/runs
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var req BulkRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	period, err := req.toPeriod()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	employees, err := h.runEmployees(r, req.EmployeeIDs)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	hours := make(map[payroll.EmployeeID]payroll.Hours, len(req.Hours))
	for id, hr := range req.Hours {
		hours[payroll.EmployeeID(id)] = payroll.Hours{Worked: hr.Worked, Overtime: hr.Overtime}
	}

	report, err := h.Bulk.Run(r.Context(), employees, period, hours)
	if err != nil {
		h.logger.Error("payroll run aborted", "error", err, "request_id", middleware.GetReqID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Payroll run aborted",
			Details: toBulkRunResponse(report),
		})
		return
	}
	writeJSON(w, http.StatusOK, toBulkRunResponse(report))
}

func (h *Handler) runEmployees(r *http.Request, ids []string) ([]payroll.Employee, error) {
	if len(ids) == 0 {
		active := payroll.StatusActive
		return h.Store.ListEmployees(r.Context(), &active)
	}
	employees := make([]payroll.Employee, 0, len(ids))
	for _, id := range ids {
		emp, err := h.Store.GetEmployee(r.Context(), payroll.EmployeeID(id))
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, nil
}

// =============================================================================
// YEAR-END HANDLERS
// =============================================================================

// GetYearEnd returns one employee's W-2 style summary.
// GET /api/employees/{id}/year-end/{year}
func (h *Handler) GetYearEnd(w http.ResponseWriter, r *http.Request) {
	year, err := requiredYear(chi.URLParam(r, "year"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	summary, err := h.Aggregator.Summarize(r.Context(), employeeIDParam(r), year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toYearEndDTO(summary))
}

// ListYearEnd summarizes every employee paid in the year.
// GET /api/year-end/{year}?format=csv
func (h *Handler) ListYearEnd(w http.ResponseWriter, r *http.Request) {
	year, err := requiredYear(chi.URLParam(r, "year"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	summaries, err := h.Aggregator.SummarizeAll(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if wantsCSV(r) {
		var buf bytes.Buffer
		if err := export.WriteYearEndCSV(&buf, summaries); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeAttachment(w, "text/csv", fmt.Sprintf("year-end-%d.csv", year), buf.Bytes())
		return
	}
	dtos := make([]YearEndDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toYearEndDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func employeeIDParam(r *http.Request) payroll.EmployeeID {
	return payroll.EmployeeID(chi.URLParam(r, "id"))
}

func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}

func optionalYear(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return requiredYear(s)
}

func requiredYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year < 1 {
		return 0, payroll.NewValidationError(payroll.CodeInvalidField, fmt.Sprintf("invalid year %q", s))
	}
	return year, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *payroll.ValidationError
		iv   *payroll.InvariantViolation
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Code: verr.Code})
	case errors.As(err, &iv):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: iv.Message, Code: iv.Code})
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, payroll.ErrDuplicatePaystub), errors.Is(err, payroll.ErrEmployeeHasPaystubs):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

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

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
