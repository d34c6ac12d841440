package grn

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// warehouseColumns must all be present in a warehouse upload, even when some
// per-row values are empty.
var warehouseColumns = []string{
	"purchase_order_item_id", "product_id", "medicine_id", "uom",
	"accepted_qty", "rejected_qty", "batch_no", "expiry_date", "reason",
}

// branchRequiredColumns is the minimum header for a branch upload.
var branchRequiredColumns = []string{"batch_no", "received_qty"}

// BatchError aggregates row-level parse failures; the upload is rejected as a
// whole.
type BatchError struct {
	Rows []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("grn: upload rejected, %d invalid rows", len(e.Rows))
}

type csvFile struct {
	index   map[string]int
	records [][]string
}

func readCSV(r io.Reader, required []string) (*csvFile, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable CSV header", ErrValidation)
	}
	index := map[string]int{}
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrValidation, strings.Join(missing, ", "))
	}

	file := &csvFile{index: index}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		file.records = append(file.records, record)
	}
	return file, nil
}

func (f *csvFile) field(record []string, name string) string {
	i, ok := f.index[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseQty(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func parseOptionalID(value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ParseWarehouseCSV converts an upload into warehouse rows. Validation here
// is purely syntactic; the engine applies the business rules.
func ParseWarehouseCSV(r io.Reader) ([]Row, error) {
	file, err := readCSV(r, warehouseColumns)
	if err != nil {
		return nil, err
	}

	var rows []Row
	var rowErrs []string
	for i, record := range file.records {
		line := i + 1
		fail := func(format string, args ...any) {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: %s", line, fmt.Sprintf(format, args...)))
		}
		row := Row{
			UOM:     file.field(record, "uom"),
			BatchNo: file.field(record, "batch_no"),
			Reason:  file.field(record, "reason"),
		}
		ok := true
		if row.POItemID, err = parseQty(file.field(record, "purchase_order_item_id")); err != nil {
			fail("purchase_order_item_id must be an integer")
			ok = false
		}
		if row.ProductID, err = parseOptionalID(file.field(record, "product_id")); err != nil {
			fail("product_id must be an integer")
			ok = false
		}
		if row.MedicineID, err = parseOptionalID(file.field(record, "medicine_id")); err != nil {
			fail("medicine_id must be an integer")
			ok = false
		}
		if row.AcceptedQty, err = parseQty(file.field(record, "accepted_qty")); err != nil {
			fail("accepted_qty must be an integer")
			ok = false
		}
		if row.RejectedQty, err = parseQty(file.field(record, "rejected_qty")); err != nil {
			fail("rejected_qty must be an integer")
			ok = false
		}
		if row.ExpiryDate = file.field(record, "expiry_date"); row.ExpiryDate != "" {
			if _, err := time.Parse(dateLayout, row.ExpiryDate); err != nil {
				fail("expiry_date must be YYYY-MM-DD")
				ok = false
			}
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rowErrs) > 0 {
		return nil, &BatchError{Rows: rowErrs}
	}
	return rows, nil
}

// ParseBranchCSV converts an upload into branch rows.
func ParseBranchCSV(r io.Reader) ([]BranchRow, error) {
	file, err := readCSV(r, branchRequiredColumns)
	if err != nil {
		return nil, err
	}

	var rows []BranchRow
	var rowErrs []string
	for i, record := range file.records {
		line := i + 1
		fail := func(format string, args ...any) {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: %s", line, fmt.Sprintf(format, args...)))
		}
		row := BranchRow{
			UOM:     file.field(record, "uom"),
			BatchNo: file.field(record, "batch_no"),
		}
		ok := true
		if row.ProductID, err = parseOptionalID(file.field(record, "product_id")); err != nil {
			fail("product_id must be an integer")
			ok = false
		}
		if row.MedicineID, err = parseOptionalID(file.field(record, "medicine_id")); err != nil {
			fail("medicine_id must be an integer")
			ok = false
		}
		for _, qty := range []struct {
			name string
			dest *int64
		}{
			{"received_qty", &row.ReceivedQty},
			{"missing_qty", &row.MissingQty},
			{"damaged_qty", &row.DamagedQty},
			{"expired_qty", &row.ExpiredQty},
		} {
			if *qty.dest, err = parseQty(file.field(record, qty.name)); err != nil {
				fail("%s must be an integer", qty.name)
				ok = false
			}
		}
		if row.ExpiryDate = file.field(record, "expiry_date"); row.ExpiryDate != "" {
			if _, err := time.Parse(dateLayout, row.ExpiryDate); err != nil {
				fail("expiry_date must be YYYY-MM-DD")
				ok = false
			}
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rowErrs) > 0 {
		return nil, &BatchError{Rows: rowErrs}
	}
	return rows, nil
}
