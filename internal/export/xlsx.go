// Package export renders a session's change set as a spreadsheet for
// review outside the CLI.
package export

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/leasingborsen/reconcile-cli/internal/model"
)

var changeHeaders = []string{
	"Change ID", "Type", "Status", "Match", "Confidence",
	"Make", "Model", "Variant", "Transmission", "Monthly Price",
	"Listing ID", "Diff", "Error",
}

// WriteSessionXLSX writes one workbook with a summary sheet and one row
// per change.
func WriteSessionXLSX(path string, sess *model.ExtractionSession, changes []model.Change) error {
	file := xlsx.NewFile()

	if err := writeSummary(file, sess); err != nil {
		return err
	}
	if err := writeChanges(file, changes); err != nil {
		return err
	}

	return eris.Wrapf(file.Save(path), "export: save %s", path)
}

func writeSummary(file *xlsx.File, sess *model.ExtractionSession) error {
	sheet, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	rows := [][2]string{
		{"Session", sess.ID},
		{"Seller", sess.SellerID},
		{"Status", string(sess.Status)},
		{"Created", fmt.Sprintf("%d", sess.Counts.Created)},
		{"Updated", fmt.Sprintf("%d", sess.Counts.Updated)},
		{"Deleted", fmt.Sprintf("%d", sess.Counts.Deleted)},
		{"Unchanged", fmt.Sprintf("%d", sess.Counts.Unchanged)},
		{"Created at", sess.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if sess.AppliedAt != nil {
		rows = append(rows,
			[2]string{"Applied at", sess.AppliedAt.Format("2006-01-02 15:04:05")},
			[2]string{"Applied by", sess.AppliedBy},
		)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().Value = r[0]
		row.AddCell().Value = r[1]
	}
	return nil
}

func writeChanges(file *xlsx.File, changes []model.Change) error {
	sheet, err := file.AddSheet("Changes")
	if err != nil {
		return eris.Wrap(err, "export: add changes sheet")
	}

	header := sheet.AddRow()
	for _, h := range changeHeaders {
		header.AddCell().Value = h
	}

	for _, ch := range changes {
		row := sheet.AddRow()
		row.AddCell().Value = ch.ID
		row.AddCell().Value = string(ch.ChangeType)
		row.AddCell().Value = string(ch.Status)
		row.AddCell().Value = string(ch.MatchMethod)
		row.AddCell().Value = fmt.Sprintf("%.2f", ch.Confidence)

		if v := ch.ExtractedData; v != nil {
			row.AddCell().Value = v.Make
			row.AddCell().Value = v.Model
			row.AddCell().Value = v.Variant
			row.AddCell().Value = v.Transmission
			row.AddCell().Value = fmt.Sprintf("%d", v.MonthlyPrice)
		} else {
			for i := 0; i < 5; i++ {
				row.AddCell()
			}
		}

		if ch.ExistingListingID != nil {
			row.AddCell().Value = *ch.ExistingListingID
		} else {
			row.AddCell()
		}
		row.AddCell().Value = diffSummary(ch.Diff)
		row.AddCell().Value = ch.Error
	}
	return nil
}

// diffSummary flattens a diff into one reviewable cell.
func diffSummary(d *model.ChangeDiff) string {
	if d.Empty() {
		return ""
	}
	var parts []string
	for _, f := range d.Fields {
		parts = append(parts, fmt.Sprintf("%s: %v -> %v", f.Field, f.Old, f.New))
	}
	if d.Offers != nil {
		if n := len(d.Offers.Added); n > 0 {
			parts = append(parts, fmt.Sprintf("offers added: %d", n))
		}
		if n := len(d.Offers.Removed); n > 0 {
			parts = append(parts, fmt.Sprintf("offers removed: %d", n))
		}
		for _, oc := range d.Offers.PriceChanged {
			parts = append(parts, fmt.Sprintf("offer %dm/%dkm: %d -> %d",
				oc.New.PeriodMonths, oc.New.MileagePerYear, oc.Old.MonthlyPrice, oc.New.MonthlyPrice))
		}
	}
	return strings.Join(parts, "; ")
}
