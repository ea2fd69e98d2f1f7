// Package schema describes the columns of the source CSV that submitted code
// is expected to read.
package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sakif/csv-extractor/internal/model"
)

// descriptions documents the known columns of the production report.
var descriptions = map[string]string{
	"SO Description":      "Sales order description or item description",
	"CustCode":            "Unique customer code",
	"Dsg Ctg":             "Design category (e.g., Necklace, Ring, Bracelet)",
	"Prod Ctg":            "Product category or product line",
	"PPC Delivery Period": "Planned delivery period or week for production",
	"Factory":             "Factory or manufacturing unit identifier",
	"Set Type":            "Set type classification (e.g., MS, WS)",
	"MS Qty":              "Quantity of MS (Main Stone) items",
	"WS Qty":              "Quantity of WS (Working Stone) items",
	"KT":                  "Metal purity or karat value",
	"Total Bag Bal":       "Total bag balance quantity",
	"Bal To Prod Qty":     "Balance quantity yet to be produced",
	"Bal To Exp Qty":      "Balance quantity yet to be exported",
	"BalToMfg":            "Balance quantity pending manufacturing",
	"CastBal":             "Casting balance quantity",
}

// Describe returns the description of a column, or "" for an unknown one.
func Describe(column string) string {
	return descriptions[column]
}

// Reader reads the header of the CSV file at Path.
type Reader struct {
	Path string
}

func NewReader(path string) *Reader {
	return &Reader{Path: path}
}

// Columns returns every header column in file order with its description.
// Only the first record is read.
func (r *Reader) Columns() ([]model.Column, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("schema: opening source csv: %w", err)
	}
	defer f.Close()

	return ReadColumns(f)
}

// ReadColumns parses the header record from src.
func ReadColumns(src io.Reader) ([]model.Column, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []model.Column{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schema: reading header: %w", err)
	}

	columns := make([]model.Column, 0, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		name = strings.TrimSpace(name)
		columns = append(columns, model.Column{Name: name, Description: Describe(name)})
	}
	return columns, nil
}
