package export_test

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/export"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/storetest"
)

func readCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWritePaystubsCSV(t *testing.T) {
	// GIVEN: Two stubs in pay-date order
	// WHEN: They are exported
	// THEN: A header row, then one row each with two-decimal money
	stubs := []payroll.Paystub{
		storetest.Paystub("p1", "e1", 1, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)),
		storetest.Paystub("p2", "e1", 2, time.Date(2024, time.January, 19, 0, 0, 0, 0, time.UTC)),
	}
	stubs[1].Gross = decimal.NewFromInt(3000)

	var buf bytes.Buffer
	require.NoError(t, export.WritePaystubsCSV(&buf, stubs))

	records := readCSV(t, buf.Bytes())
	require.Len(t, records, 3)
	header := records[0]
	assert.Equal(t, "check_number", header[0])
	assert.Contains(t, header, "net_pay")
	assert.Contains(t, header, "ss_wages")

	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("missing column %s", name)
		return -1
	}
	assert.Equal(t, "CHK-000001", records[1][col("check_number")])
	assert.Equal(t, "2024-01-05", records[1][col("pay_date")])
	assert.Equal(t, "2366.60", records[1][col("net_pay")])
	assert.Equal(t, "3000.00", records[2][col("gross")])
	assert.Equal(t, "0.00", records[2][col("pre_tax_deductions")])
}

func TestWritePaystubsCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WritePaystubsCSV(&buf, nil))
	records := readCSV(t, buf.Bytes())
	require.Len(t, records, 1, "header only")
}

func TestWriteYearEndCSV(t *testing.T) {
	s := payroll.YearEndSummary{
		EmployeeID: "e1", EmployeeName: "Employee e1", Year: 2024, PaystubCount: 26,
		Gross: decimal.RequireFromString("400000.12"),
		Box1:  decimal.RequireFromString("400000.12"),
		Box3:  decimal.RequireFromString("168600"),
		Box4:  decimal.RequireFromString("10453.2"),
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteYearEndCSV(&buf, []payroll.YearEndSummary{s}))

	records := readCSV(t, buf.Bytes())
	require.Len(t, records, 2)
	row := map[string]string{}
	for i, h := range records[0] {
		row[h] = records[1][i]
	}
	assert.Equal(t, "2024", row["year"])
	assert.Equal(t, "26", row["paystub_count"])
	assert.Equal(t, "168600.00", row["box3_ss_wages"])
	assert.Equal(t, "10453.20", row["box4_ss_tax"])
	assert.Equal(t, "0.00", row["box6_medicare_tax"])
}

func TestWritePaystubPDF(t *testing.T) {
	stub := storetest.Paystub("p1", "e1", 7, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, export.WritePaystubPDF(&buf, stub))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}
