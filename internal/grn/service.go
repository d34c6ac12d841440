package grn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowbill/flowbill/internal/catalog"
	"github.com/flowbill/flowbill/internal/purchasing"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindByRequestID(ctx context.Context, requestID string) (GRN, error)
	Get(ctx context.Context, id int64) (GRN, error)
}

// Service is the receipt reconciliation engine.
type Service struct {
	repo   RepositoryPort
	events IntegrationHandler
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, events IntegrationHandler, logger *slog.Logger) *Service {
	return &Service{repo: repo, events: events, logger: logger, now: time.Now}
}

func newSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// today returns the current date with the time component dropped. Expiry is
// compared date to date, not instant to instant.
func (s *Service) today() time.Time {
	t := s.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type preparedRow struct {
	poItemID *int64
	item     catalog.ItemRef
	batchNo  string
	expiry   *time.Time
	accepted int64
	rejected int64
	uom      string
	reason   string
}

// applyExpiryPolicy folds the accepted amount into rejected when the batch is
// already expired. Evaluated per row.
func (p *preparedRow) applyExpiryPolicy(today time.Time) {
	if p.expiry != nil && p.expiry.Before(today) {
		p.rejected += p.accepted
		p.accepted = 0
	}
}

func prepareRow(index int, row Row) (preparedRow, error) {
	rowErr := func(format string, args ...any) error {
		return fmt.Errorf("%w: row %d: %s", ErrValidation, index, fmt.Sprintf(format, args...))
	}
	if row.POItemID <= 0 {
		return preparedRow{}, rowErr("purchase_order_item_id is required")
	}
	if strings.TrimSpace(row.BatchNo) == "" {
		return preparedRow{}, rowErr("batch_no is required")
	}
	if row.AcceptedQty < 0 || row.RejectedQty < 0 {
		return preparedRow{}, rowErr("quantities must be >= 0")
	}
	ref, err := itemRef(row.ProductID, row.MedicineID)
	if err != nil {
		return preparedRow{}, rowErr("%v", err)
	}
	expiry, err := parseExpiry(row.ExpiryDate)
	if err != nil {
		return preparedRow{}, rowErr("expiry_date must be YYYY-MM-DD")
	}
	poItemID := row.POItemID
	return preparedRow{
		poItemID: &poItemID,
		item:     ref,
		batchNo:  strings.TrimSpace(row.BatchNo),
		expiry:   expiry,
		accepted: row.AcceptedQty,
		rejected: row.RejectedQty,
		uom:      row.UOM,
		reason:   row.Reason,
	}, nil
}

func prepareBranchRow(index int, row BranchRow) (preparedRow, error) {
	rowErr := func(format string, args ...any) error {
		return fmt.Errorf("%w: row %d: %s", ErrValidation, index, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(row.BatchNo) == "" {
		return preparedRow{}, rowErr("batch_no is required")
	}
	if row.ReceivedQty < 0 || row.MissingQty < 0 || row.DamagedQty < 0 || row.ExpiredQty < 0 {
		return preparedRow{}, rowErr("quantities must be >= 0")
	}
	ref, err := itemRef(row.ProductID, row.MedicineID)
	if err != nil {
		return preparedRow{}, rowErr("%v", err)
	}
	expiry, err := parseExpiry(row.ExpiryDate)
	if err != nil {
		return preparedRow{}, rowErr("expiry_date must be YYYY-MM-DD")
	}
	reason := ""
	if row.MissingQty > 0 || row.DamagedQty > 0 || row.ExpiredQty > 0 {
		reason = fmt.Sprintf("missing=%d damaged=%d expired=%d", row.MissingQty, row.DamagedQty, row.ExpiredQty)
	}
	return preparedRow{
		item:     ref,
		batchNo:  strings.TrimSpace(row.BatchNo),
		expiry:   expiry,
		accepted: row.ReceivedQty,
		rejected: row.MissingQty + row.DamagedQty + row.ExpiredQty,
		uom:      row.UOM,
		reason:   reason,
	}, nil
}

func (s *Service) validateRequest(requestID string, rowCount int) error {
	if strings.TrimSpace(requestID) == "" {
		return fmt.Errorf("%w: request_id is required", ErrValidation)
	}
	if rowCount == 0 {
		return fmt.Errorf("%w: at least one row required", ErrValidation)
	}
	return nil
}

// CreateWarehouseGRN reconciles a warehouse receipt against a purchase order.
// A repeated request_id returns the original receipt with no further effect.
func (s *Service) CreateWarehouseGRN(ctx context.Context, poID int64, rows []Row, requestID string) (Result, error) {
	if err := s.validateRequest(requestID, len(rows)); err != nil {
		return Result{}, err
	}
	if poID <= 0 {
		return Result{}, fmt.Errorf("%w: purchase_order_id is required", ErrValidation)
	}
	prepared := make([]preparedRow, 0, len(rows))
	for i, row := range rows {
		p, err := prepareRow(i+1, row)
		if err != nil {
			return Result{}, err
		}
		prepared = append(prepared, p)
	}

	today := s.today()
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindByRequestID(ctx, requestID)
		if err == nil {
			result = Result{GRNNumber: existing.Number, GRNID: existing.ID, Status: existing.Status, Replayed: true}
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status == string(purchasing.StatusCancelled) {
			return ErrPOCancelled
		}
		lines := make(map[int64]POLine, len(po.Lines))
		for _, line := range po.Lines {
			lines[line.ID] = line
		}

		items := make([]GRNItem, 0, len(prepared))
		for i := range prepared {
			row := &prepared[i]
			line, ok := lines[*row.poItemID]
			if !ok {
				return fmt.Errorf("%w: row %d: line %d is not on purchase order %d", ErrLineNotFound, i+1, *row.poItemID, poID)
			}
			if line.Item.Kind != row.item.Kind {
				return fmt.Errorf("%w: row %d: line %d expects a %s", ErrItemKindMismatch, i+1, line.ID, line.Item.Kind)
			}
			row.applyExpiryPolicy(today)
			items = append(items, GRNItem{
				POItemID:    row.poItemID,
				Item:        row.item,
				BatchNo:     row.batchNo,
				ExpiryDate:  row.expiry,
				AcceptedQty: row.accepted,
				RejectedQty: row.rejected,
				UOM:         row.uom,
				Reason:      row.reason,
			})
		}

		created, err := tx.InsertGRN(ctx, GRN{
			Number:    fmt.Sprintf("GRN-WH-%d-%s", poID, newSuffix()),
			Type:      TypeWarehouse,
			POID:      &poID,
			Status:    StatusPartial,
			RequestID: requestID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, created.ID, items); err != nil {
			return err
		}
		for _, item := range items {
			if item.AcceptedQty > 0 {
				if _, err := tx.IncrementStock(ctx, item.Item, item.AcceptedQty); err != nil {
					return err
				}
			}
		}

		totals, err := tx.AcceptedTotalsByItem(ctx, poID)
		if err != nil {
			return err
		}
		status := StatusPartial
		if fullyReceived(po.Lines, totals) {
			status = StatusFull
			if err := tx.UpdatePOStatus(ctx, poID, string(purchasing.StatusReceived)); err != nil {
				return err
			}
		}
		if err := tx.Finalize(ctx, created.ID, status, s.now().UTC()); err != nil {
			return err
		}
		result = Result{GRNNumber: created.Number, GRNID: created.ID, Status: status}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateRequest) {
			return s.replayWinner(ctx, requestID)
		}
		return Result{}, err
	}
	s.emit(ctx, result, TypeWarehouse, &poID, acceptedTotal(prepared))
	return result, nil
}

// CreateBranchGRN records a branch receipt acknowledging a dispatch. The
// dispatch carries no expected-quantity contract, so fullness is local: Full
// iff every row accepted something.
func (s *Service) CreateBranchGRN(ctx context.Context, dispatchID int64, rows []BranchRow, requestID string) (Result, error) {
	if err := s.validateRequest(requestID, len(rows)); err != nil {
		return Result{}, err
	}
	if dispatchID <= 0 {
		return Result{}, fmt.Errorf("%w: dispatch_id is required", ErrValidation)
	}
	prepared := make([]preparedRow, 0, len(rows))
	for i, row := range rows {
		p, err := prepareBranchRow(i+1, row)
		if err != nil {
			return Result{}, err
		}
		prepared = append(prepared, p)
	}

	today := s.today()
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindByRequestID(ctx, requestID)
		if err == nil {
			result = Result{GRNNumber: existing.Number, GRNID: existing.ID, Status: existing.Status, Replayed: true}
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		allAccepted := true
		items := make([]GRNItem, 0, len(prepared))
		for i := range prepared {
			row := &prepared[i]
			row.applyExpiryPolicy(today)
			if row.accepted == 0 {
				allAccepted = false
			}
			items = append(items, GRNItem{
				Item:        row.item,
				BatchNo:     row.batchNo,
				ExpiryDate:  row.expiry,
				AcceptedQty: row.accepted,
				RejectedQty: row.rejected,
				UOM:         row.uom,
				Reason:      row.reason,
			})
		}

		created, err := tx.InsertGRN(ctx, GRN{
			Number:     fmt.Sprintf("GRN-BR-%d-%s", dispatchID, newSuffix()),
			Type:       TypeBranch,
			DispatchID: &dispatchID,
			Status:     StatusPartial,
			RequestID:  requestID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, created.ID, items); err != nil {
			return err
		}
		for _, item := range items {
			if item.AcceptedQty > 0 {
				if _, err := tx.IncrementStock(ctx, item.Item, item.AcceptedQty); err != nil {
					return err
				}
			}
		}

		status := StatusPartial
		if allAccepted {
			status = StatusFull
		}
		if err := tx.Finalize(ctx, created.ID, status, s.now().UTC()); err != nil {
			return err
		}
		result = Result{GRNNumber: created.Number, GRNID: created.ID, Status: status}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDuplicateRequest) {
			return s.replayWinner(ctx, requestID)
		}
		return Result{}, err
	}
	s.emit(ctx, result, TypeBranch, nil, acceptedTotal(prepared))
	return result, nil
}

// replayWinner handles the request_id race: the unique index fired, so a
// concurrent call committed first. Return its receipt.
func (s *Service) replayWinner(ctx context.Context, requestID string) (Result, error) {
	winner, err := s.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return Result{}, err
	}
	return Result{GRNNumber: winner.Number, GRNID: winner.ID, Status: winner.Status, Replayed: true}, nil
}

// Get returns a receipt with its items.
func (s *Service) Get(ctx context.Context, id int64) (GRN, error) {
	if id <= 0 {
		return GRN{}, fmt.Errorf("%w: grn id required", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func acceptedTotal(prepared []preparedRow) int64 {
	var total int64
	for i := range prepared {
		total += prepared[i].accepted
	}
	return total
}

func (s *Service) emit(ctx context.Context, result Result, grnType Type, poID *int64, acceptedUnits int64) {
	if result.Replayed {
		return
	}
	if s.logger != nil {
		s.logger.Info("grn created",
			slog.String("number", result.GRNNumber),
			slog.String("type", string(grnType)),
			slog.String("status", string(result.Status)))
	}
	if s.events == nil {
		return
	}
	event := GRNCreatedEvent{
		GRNID:         result.GRNID,
		Number:        result.GRNNumber,
		Type:          grnType,
		Status:        result.Status,
		POID:          poID,
		AcceptedUnits: acceptedUnits,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.events.GRNCreated(ctx, event); err != nil && s.logger != nil {
		s.logger.Warn("grn event dispatch failed", slog.Any("error", err))
	}
}

// fullyReceived reports whether every line's cumulative accepted quantity,
// aggregated across all receipts of the order, covers its expected quantity.
func fullyReceived(lines []POLine, totals map[catalog.ItemRef]int64) bool {
	if len(lines) == 0 {
		return false
	}
	for _, line := range lines {
		if totals[line.Item] < line.Qty {
			return false
		}
	}
	return true
}
