package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// BulkRow is one record of a bulk catalog upload, keyed by category name the
// way upstream exports deliver them.
type BulkRow struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PackQty     int64  `json:"pack_qty"`
	BrandName   string `json:"brand_name"`
	Molecule    string `json:"molecule"`
	UOM         string `json:"uom"`
	Shape       string `json:"shape"`
	Material    string `json:"material"`
	Color       string `json:"color"`
	Size        string `json:"size"`
	Stock       int64  `json:"stock"`
	IsActive    bool   `json:"is_active"`
}

// BulkResult summarises an accepted upload.
type BulkResult struct {
	ProductsCreated  int `json:"products_created"`
	MedicinesCreated int `json:"medicines_created"`
}

// BatchError aggregates row-level failures; the upload is rejected as a whole.
type BatchError struct {
	Rows []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("catalog: bulk upload rejected, %d invalid rows", len(e.Rows))
}

// ParseBulkCSV reads upload rows from CSV. Parsing is purely syntactic; any
// bad row fails the whole file with 1-based row numbers.
func ParseBulkCSV(r io.Reader) ([]BulkRow, error) {
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
	for _, col := range []string{"name", "category"} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: CSV missing required columns: %s", ErrValidation, strings.Join(missing, ", "))
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []BulkRow
	var rowErrs []string
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		row := BulkRow{
			Name:        field(record, "name"),
			Description: field(record, "description"),
			Category:    field(record, "category"),
			BrandName:   field(record, "brand_name"),
			Molecule:    field(record, "molecule"),
			UOM:         field(record, "uom"),
			Shape:       field(record, "shape"),
			Material:    field(record, "material"),
			Color:       field(record, "color"),
			Size:        field(record, "size"),
			IsActive:    true,
		}
		ok := true
		if row.PackQty, err = parseOptionalInt(field(record, "pack_qty")); err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: pack_qty must be an integer", line))
			ok = false
		}
		if row.Stock, err = parseOptionalInt(field(record, "stock")); err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: stock must be an integer", line))
			ok = false
		}
		if v := field(record, "is_active"); v != "" {
			row.IsActive = strings.EqualFold(v, "true")
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

func parseOptionalInt(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

// BulkIngest validates every row and, only when all pass, creates the items in
// one transaction. A repeated request id is rejected with
// shared.ErrIdempotencyConflict before any row is written; the key is released
// again when the insert transaction fails, so the caller may retry.
func (s *Service) BulkIngest(ctx context.Context, rows []BulkRow, requestID string) (BulkResult, error) {
	if len(rows) == 0 {
		return BulkResult{}, fmt.Errorf("%w: no rows supplied", ErrValidation)
	}

	type staged struct {
		kind Kind
		item Item
	}
	var rowErrs []string
	prepared := make([]staged, 0, len(rows))
	for i, row := range rows {
		rowNum := i + 1
		if strings.TrimSpace(row.Name) == "" {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: name is required", rowNum))
			continue
		}
		category, err := s.repo.GetCategoryByName(ctx, strings.TrimSpace(row.Category))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: category %q does not exist", rowNum, row.Category))
			continue
		}
		if row.PackQty < 0 || row.Stock < 0 {
			rowErrs = append(rowErrs, fmt.Sprintf("row %d: quantities must be >= 0", rowNum))
			continue
		}
		packQty := row.PackQty
		if packQty == 0 {
			packQty = 1
		}
		prepared = append(prepared, staged{kind: category.Kind, item: Item{
			Name:        row.Name,
			Description: row.Description,
			CategoryID:  category.ID,
			PackQty:     packQty,
			BrandName:   row.BrandName,
			Molecule:    row.Molecule,
			UOM:         row.UOM,
			Shape:       row.Shape,
			Material:    row.Material,
			Color:       row.Color,
			Size:        row.Size,
			Stock:       row.Stock,
			IsActive:    row.IsActive,
		}})
	}
	if len(rowErrs) > 0 {
		return BulkResult{}, &BatchError{Rows: rowErrs}
	}

	insertedKey := false
	if s.idempotency != nil && requestID != "" {
		if err := s.idempotency.CheckAndInsert(ctx, "catalog:bulk:"+requestID, "catalog"); err != nil {
			return BulkResult{}, err
		}
		insertedKey = true
	}

	var result BulkResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, entry := range prepared {
			if _, err := tx.CreateItem(ctx, entry.kind, entry.item); err != nil {
				return err
			}
			if entry.kind == KindMedicine {
				result.MedicinesCreated++
			} else {
				result.ProductsCreated++
			}
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, "catalog:bulk:"+requestID)
		}
		return BulkResult{}, err
	}
	return result, nil
}
