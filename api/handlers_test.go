/*
handlers_test.go - HTTP tests for the payroll API

Every test runs the full router against an in-memory SQLite store, so
status mapping, JSON shapes and persistence are exercised together.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/ledger"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/store/sqlite"
	"github.com/warp/payroll-engine/taxtable"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tables := taxtable.Default()
	l := ledger.New(store, tables, ledger.WithMetrics(m))
	h := api.NewHandler(store, l, ledger.NewBulkRunner(l, 4, nil, m), ledger.NewAggregator(store, tables, nil), nil)

	srv := httptest.NewServer(api.NewRouter(h, api.RouterOptions{
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}))
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

func (ts *testServer) do(method, path string, body any) *http.Response {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func salariedBody(id, salary string) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          "Employee " + id,
		"email":         id + "@example.com",
		"annual_salary": salary,
		"pay_frequency": "biweekly",
		"filing_status": "single",
		"state_code":    "CA",
		"hire_date":     "2020-03-01",
	}
}

var firstPeriod = map[string]any{
	"period_start": "2023-12-18",
	"period_end":   "2023-12-31",
	"pay_date":     "2024-01-05",
}

func (ts *testServer) hire(id, salary string) {
	ts.t.Helper()
	resp := ts.do("POST", "/api/employees", salariedBody(id, salary))
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestCreateEmployee(t *testing.T) {
	// GIVEN: A salaried employee request
	// WHEN: It is posted
	// THEN: 201 with zero YTD; a second create with the same id conflicts
	ts := newTestServer(t)

	resp := ts.do("POST", "/api/employees", salariedBody("e1", "80000"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	emp := decode[api.EmployeeDTO](t, resp)
	assert.Equal(t, "e1", emp.ID)
	require.NotNil(t, emp.AnnualSalary)
	assert.Equal(t, "80000.00", *emp.AnnualSalary)
	assert.Nil(t, emp.HourlyRate)
	assert.Equal(t, "active", emp.Status)
	assert.Equal(t, "0.00", emp.YTD.Gross)

	resp = ts.do("POST", "/api/employees", salariedBody("e1", "80000"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateEmployee_GeneratesID(t *testing.T) {
	ts := newTestServer(t)
	body := salariedBody("", "80000")
	delete(body, "id")

	resp := ts.do("POST", "/api/employees", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	emp := decode[api.EmployeeDTO](t, resp)
	assert.Len(t, emp.ID, 36)
}

func TestCreateEmployee_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		code   string
	}{
		{"both salary and rate", func(b map[string]any) { b["hourly_rate"] = "20" }, "invalid_compensation"},
		{"neither salary nor rate", func(b map[string]any) { delete(b, "annual_salary") }, "invalid_compensation"},
		{"unknown frequency", func(b map[string]any) { b["pay_frequency"] = "daily" }, "invalid_field"},
		{"bad hire date", func(b map[string]any) { b["hire_date"] = "03/01/2020" }, "invalid_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			body := salariedBody("e1", "80000")
			tt.mutate(body)

			resp := ts.do("POST", "/api/employees", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decode[api.ErrorResponse](t, resp).Code)
		})
	}
}

func TestListEmployees_ByStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("b", "80000")
	ts.hire("a", "80000")
	gone := salariedBody("c", "80000")
	gone["status"] = "terminated"
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/employees", gone).StatusCode)

	all := decode[[]api.EmployeeDTO](t, ts.do("GET", "/api/employees", nil))
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)

	active := decode[[]api.EmployeeDTO](t, ts.do("GET", "/api/employees?status=active", nil))
	assert.Len(t, active, 2)

	resp := ts.do("GET", "/api/employees?status=retired", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateEmployee_KeepsYTD(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("e1", "80000")
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/employees/e1/paystubs", firstPeriod).StatusCode)

	body := salariedBody("e1", "90000")
	body["title"] = "Lead"
	resp := ts.do("PUT", "/api/employees/e1", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	emp := decode[api.EmployeeDTO](t, resp)
	assert.Equal(t, "Lead", emp.Title)
	assert.Equal(t, "90000.00", *emp.AnnualSalary)
	assert.Equal(t, "3076.92", emp.YTD.Gross)

	assert.Equal(t, http.StatusNotFound, ts.do("PUT", "/api/employees/ghost", body).StatusCode)
}

func TestDeleteEmployee(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("paid", "80000")
	ts.hire("unpaid", "80000")
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/employees/paid/paystubs", firstPeriod).StatusCode)

	assert.Equal(t, http.StatusConflict, ts.do("DELETE", "/api/employees/paid", nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, ts.do("DELETE", "/api/employees/unpaid", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do("GET", "/api/employees/unpaid", nil).StatusCode)
}

// =============================================================================
// DEDUCTIONS
// =============================================================================

func TestDeductions_Lifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("e1", "80000")

	resp := ts.do("POST", "/api/employees/e1/deductions", map[string]any{"type": "401k", "amount": 6, "is_percentage": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.DeductionDTO](t, resp)
	assert.Equal(t, "pre_tax", created.Category)
	assert.Equal(t, "6", created.Amount)

	resp = ts.do("POST", "/api/employees/e1/deductions", map[string]any{"type": "roth", "amount": "100"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, http.StatusNoContent, ts.do("DELETE", "/api/deductions/"+created.ID, nil).StatusCode)

	active := decode[[]api.DeductionDTO](t, ts.do("GET", "/api/employees/e1/deductions?active=true", nil))
	require.Len(t, active, 1)
	assert.Equal(t, "roth", active[0].Type)
	assert.Equal(t, "100.00", active[0].Amount)

	all := decode[[]api.DeductionDTO](t, ts.do("GET", "/api/employees/e1/deductions", nil))
	assert.Len(t, all, 2)

	resp = ts.do("POST", "/api/employees/e1/deductions", map[string]any{"type": "bonus", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = ts.do("POST", "/api/employees/ghost/deductions", map[string]any{"type": "hsa", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do("DELETE", "/api/deductions/nope", nil).StatusCode)
}

// =============================================================================
// PAYSTUBS
// =============================================================================

func TestGeneratePaystub(t *testing.T) {
	// GIVEN: $80,000 biweekly single CA
	// WHEN: The first 2024 paystub is generated over HTTP
	// THEN: The stub matches the engine and is retrievable in every format
	ts := newTestServer(t)
	ts.hire("e1", "80000")

	resp := ts.do("POST", "/api/employees/e1/paystubs", firstPeriod)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	stub := decode[api.PaystubDTO](t, resp)
	assert.Equal(t, "CHK-000001", stub.CheckNumber)
	assert.Equal(t, "3076.92", stub.Gross)
	assert.Equal(t, "363.11", stub.FederalTax)
	assert.Equal(t, "190.77", stub.SSTax)
	assert.Equal(t, "44.62", stub.MedicareTax)
	assert.Equal(t, "153.85", stub.StateTax)
	assert.Equal(t, "2324.57", stub.NetPay)
	assert.Len(t, stub.Lines, 7)

	got := decode[api.PaystubDTO](t, ts.do("GET", "/api/paystubs/"+stub.ID, nil))
	assert.Equal(t, stub, got)

	list := decode[[]api.PaystubDTO](t, ts.do("GET", "/api/employees/e1/paystubs?year=2024", nil))
	require.Len(t, list, 1)
	assert.Empty(t, decode[[]api.PaystubDTO](t, ts.do("GET", "/api/employees/e1/paystubs?year=2023", nil)))

	csvResp := ts.do("GET", "/api/employees/e1/paystubs?format=csv", nil)
	require.Equal(t, http.StatusOK, csvResp.StatusCode)
	assert.Equal(t, "text/csv", csvResp.Header.Get("Content-Type"))
	body, err := io.ReadAll(csvResp.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(body), "\n"))
	assert.Contains(t, string(body), "2324.57")

	pdfResp := ts.do("GET", "/api/paystubs/"+stub.ID+"/pdf", nil)
	require.Equal(t, http.StatusOK, pdfResp.StatusCode)
	assert.Equal(t, "application/pdf", pdfResp.Header.Get("Content-Type"))
	assert.Contains(t, pdfResp.Header.Get("Content-Disposition"), "CHK-000001.pdf")
}

func TestGeneratePaystub_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("e1", "80000")
	resp := ts.do("POST", "/api/employees/e1/deductions", map[string]any{"type": "garnishment", "amount": "9000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Negative net pay is an invariant violation.
	resp = ts.do("POST", "/api/employees/e1/paystubs", firstPeriod)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "negative_net_pay", decode[api.ErrorResponse](t, resp).Code)

	// Pay date before period end.
	resp = ts.do("POST", "/api/employees/e1/paystubs", map[string]any{
		"period_start": "2024-01-01", "period_end": "2024-01-14", "pay_date": "2024-01-10",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_period", decode[api.ErrorResponse](t, resp).Code)

	resp = ts.do("POST", "/api/employees/ghost/paystubs", firstPeriod)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do("POST", "/api/employees/e1/paystubs", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, decode[[]api.PaystubDTO](t, ts.do("GET", "/api/employees/e1/paystubs", nil)))
}

func TestGeneratePaystub_Hourly(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do("POST", "/api/employees", map[string]any{
		"id": "h1", "name": "Hourly", "hourly_rate": "25",
		"pay_frequency": "weekly", "filing_status": "single", "state_code": "CA",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do("POST", "/api/employees/h1/paystubs", firstPeriod)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "hours_required", decode[api.ErrorResponse](t, resp).Code)

	body := map[string]any{
		"period_start": "2023-12-25", "period_end": "2023-12-31", "pay_date": "2024-01-05",
		"hours": map[string]any{"worked": "45", "overtime": "0"},
	}
	resp = ts.do("POST", "/api/employees/h1/paystubs", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	stub := decode[api.PaystubDTO](t, resp)
	assert.Equal(t, "1187.50", stub.Gross)
	assert.Equal(t, "40.00", stub.RegularHours)
	assert.Equal(t, "5.00", stub.OvertimeHours)
}

func TestPreviewPaystub_DoesNotPersist(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("e1", "80000")

	resp := ts.do("POST", "/api/employees/e1/paystubs/preview", firstPeriod)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	preview := decode[api.PreviewDTO](t, resp)
	assert.Equal(t, "2324.57", preview.NetPay)

	assert.Empty(t, decode[[]api.PaystubDTO](t, ts.do("GET", "/api/employees/e1/paystubs", nil)))
	emp := decode[api.EmployeeDTO](t, ts.do("GET", "/api/employees/e1", nil))
	assert.Equal(t, "0.00", emp.YTD.Gross)

	stub := decode[api.PaystubDTO](t, ts.do("POST", "/api/employees/e1/paystubs", firstPeriod))
	assert.Equal(t, "CHK-000001", stub.CheckNumber, "preview allocates no check number")
}

// =============================================================================
// PAYROLL RUNS AND YEAR END
// =============================================================================

func TestRunPayroll_ActiveEmployees(t *testing.T) {
	// GIVEN: Two active employees and one terminated
	// WHEN: A run is posted without employee ids
	// THEN: Only the active employees are paid
	ts := newTestServer(t)
	ts.hire("a", "80000")
	ts.hire("b", "90000")
	gone := salariedBody("c", "70000")
	gone["status"] = "terminated"
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/employees", gone).StatusCode)

	resp := ts.do("POST", "/api/payroll/runs", firstPeriod)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[api.BulkRunResponse](t, resp)
	assert.Len(t, report.Paystubs, 2)
	assert.Empty(t, report.Skips)
}

func TestRunPayroll_ExplicitEmployeesWithSkip(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("a", "80000")
	gone := salariedBody("b", "70000")
	gone["status"] = "terminated"
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/employees", gone).StatusCode)
	ts.hire("c", "60000")

	body := map[string]any{
		"period_start": "2023-12-18", "period_end": "2023-12-31", "pay_date": "2024-01-05",
		"employee_ids": []string{"a", "b", "c"},
	}
	report := decode[api.BulkRunResponse](t, ts.do("POST", "/api/payroll/runs", body))
	require.Len(t, report.Paystubs, 2)
	assert.Equal(t, "a", report.Paystubs[0].EmployeeID)
	assert.Equal(t, "c", report.Paystubs[1].EmployeeID)
	require.Len(t, report.Skips, 1)
	assert.Equal(t, "employee_not_active", report.Skips[0].Code)

	body["employee_ids"] = []string{"a", "ghost"}
	assert.Equal(t, http.StatusNotFound, ts.do("POST", "/api/payroll/runs", body).StatusCode)
}

func TestYearEnd(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("e1", "80000")
	ts.hire("idle", "80000")
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/employees/e1/paystubs", firstPeriod).StatusCode)

	resp := ts.do("GET", "/api/employees/e1/year-end/2024", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[api.YearEndDTO](t, resp)
	assert.Equal(t, 1, summary.PaystubCount)
	assert.Equal(t, "3076.92", summary.Box1)
	assert.Equal(t, "3076.92", summary.Box3)
	assert.Equal(t, "190.77", summary.Box4)

	all := decode[[]api.YearEndDTO](t, ts.do("GET", "/api/year-end/2024", nil))
	require.Len(t, all, 1, "employees without paystubs are left out")

	csvResp := ts.do("GET", "/api/year-end/2024?format=csv", nil)
	require.Equal(t, http.StatusOK, csvResp.StatusCode)
	body, err := io.ReadAll(csvResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "box3_ss_wages")

	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/year-end/twenty", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/employees/e1/year-end/2031", nil).StatusCode)
}

func TestRolloverYTD(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("e1", "80000")
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/employees/e1/paystubs", firstPeriod).StatusCode)

	resp := ts.do("POST", "/api/employees/e1/ytd/rollover", map[string]any{"year": 2023})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do("POST", "/api/employees/e1/ytd/rollover", map[string]any{"year": 2025})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	emp := decode[api.EmployeeDTO](t, resp)
	assert.Equal(t, 2025, emp.YTD.Year)
	assert.Equal(t, "0.00", emp.YTD.Gross)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.hire("e1", "80000")
	require.Equal(t, http.StatusCreated, ts.do("POST", "/api/employees/e1/paystubs", firstPeriod).StatusCode)

	assert.Equal(t, http.StatusOK, ts.do("GET", "/health", nil).StatusCode)

	resp := ts.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `payroll_paystubs_total{frequency="biweekly",outcome="generated"} 1`)
}
