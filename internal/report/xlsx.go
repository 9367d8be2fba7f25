// Package report writes enrichment reports as spreadsheets and as JSON or
// YAML documents.
package report

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/company-intel/internal/model"
)

// DefaultFilename is the spreadsheet written when no output path is given.
const DefaultFilename = "company_intelligence.xlsx"

// Sheet names.
const (
	SheetMaster     = "Companies_Master"
	SheetLegal      = "Registry_Legal"
	SheetFinancials = "Financials_Public"
	SheetMarket     = "Market_Info"
	SheetCoverage   = "Data_Coverage"
)

const (
	colCompanyName = "company_name"
	colCompetitors = "potential_competitors"
	colTotal       = "fields_filled"
)

type sheetSpec struct {
	name    string
	columns []string
}

// sheets lists the attribute columns of each data sheet after company_name.
var sheets = []sheetSpec{
	{SheetMaster, []string{
		model.FieldWebsite, model.FieldFoundingYear, model.FieldHeadquarters,
		model.FieldCompanyType, model.FieldJurisdiction, model.FieldIsPublic,
	}},
	{SheetLegal, []string{
		model.FieldRegistrationID, model.FieldCompanyStatus,
		model.FieldIncorporationDate, model.FieldRegistryURL,
	}},
	{SheetFinancials, []string{model.FieldAnnualRevenue, model.FieldMarketCap}},
	{SheetMarket, []string{model.FieldIndustry, model.FieldCountry}},
}

// WriteXLSX saves the report as a workbook at path.
func WriteXLSX(path string, r *model.Report) error {
	f, err := build(r)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// EncodeXLSX writes the report workbook to w.
func EncodeXLSX(w io.Writer, r *model.Report) error {
	f, err := build(r)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

func build(r *model.Report) (*xlsx.File, error) {
	if r == nil {
		return nil, eris.New("report: nil report")
	}
	f := xlsx.NewFile()

	for _, layout := range sheets {
		sheet, err := f.AddSheet(layout.name)
		if err != nil {
			return nil, eris.Wrapf(err, "report: add sheet %s", layout.name)
		}
		header := append([]string{colCompanyName}, layout.columns...)
		if layout.name == SheetMaster {
			header = append(header, colCompetitors)
		}
		writeHeader(sheet, header)

		for _, c := range r.Companies {
			row := sheet.AddRow()
			row.AddCell().SetString(c.CompanyName)
			for _, col := range layout.columns {
				setValue(row.AddCell(), c.Get(col))
			}
			if layout.name == SheetMaster {
				row.AddCell().SetString(strings.Join(c.Competitors, ", "))
			}
		}
	}

	cov, err := f.AddSheet(SheetCoverage)
	if err != nil {
		return nil, eris.Wrapf(err, "report: add sheet %s", SheetCoverage)
	}
	header := append([]string{colCompanyName}, model.FieldKeys...)
	writeHeader(cov, append(header, colTotal))
	for _, c := range r.Companies {
		row := cov.AddRow()
		row.AddCell().SetString(c.CompanyName)
		for _, fv := range c.Fields() {
			if fv.Value != nil {
				row.AddCell().SetInt(1)
			} else {
				row.AddCell().SetInt(0)
			}
		}
		row.AddCell().SetInt(c.Filled())
	}
	return f, nil
}

func writeHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		row.AddCell().SetString(c)
	}
}

// setValue leaves the cell blank for null attributes.
func setValue(cell *xlsx.Cell, v any) {
	switch x := v.(type) {
	case nil:
	case float64:
		cell.SetFloat(x)
	case bool:
		cell.SetBool(x)
	default:
		cell.SetString(model.FormatValue(x))
	}
}
