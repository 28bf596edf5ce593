package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/warp/payroll-engine/payroll"
)

// WritePaystubPDF renders a single-page A4 paystub.
func WritePaystubPDF(w io.Writer, p payroll.Paystub) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Paystub %s", p.CheckRef()), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Paystub")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Employee: %s (%s)", p.EmployeeName, p.EmployeeID))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Check: %s", p.CheckRef()))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", p.Period.Start.Format(payroll.DateLayout), p.Period.End.Format(payroll.DateLayout)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Pay date: %s", p.Period.PayDate.Format(payroll.DateLayout)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(100, 8, "Description", "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, "Current", "B", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, "Year to date", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, line := range p.Lines {
		amount := money(line.Amount)
		if line.IsDeduction {
			amount = "-" + amount
		}
		pdf.CellFormat(100, 7, line.Label, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, amount, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, money(line.YTD), "", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(100, 8, "Net pay", "T", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, money(p.NetPay), "T", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, money(p.YTDNet), "T", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render paystub %s: %w", p.ID, err)
	}
	return nil
}
