package grn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWarehouseCSV(t *testing.T) {
	input := strings.Join([]string{
		"purchase_order_item_id,product_id,medicine_id,uom,accepted_qty,rejected_qty,batch_no,expiry_date,reason",
		"11,100,,Nos,60,0,B-01,2026-01-31,",
		"12,,200,strip,30,5,B-02,,short shipment",
	}, "\n")

	rows, err := ParseWarehouseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, int64(11), rows[0].POItemID)
	require.NotNil(t, rows[0].ProductID)
	require.Equal(t, int64(100), *rows[0].ProductID)
	require.Nil(t, rows[0].MedicineID)
	require.Equal(t, int64(60), rows[0].AcceptedQty)
	require.Equal(t, "2026-01-31", rows[0].ExpiryDate)

	require.Nil(t, rows[1].ProductID)
	require.NotNil(t, rows[1].MedicineID)
	require.Equal(t, "short shipment", rows[1].Reason)
	require.Equal(t, "", rows[1].ExpiryDate)
}

func TestParseWarehouseCSVMissingColumnRejectsWholeUpload(t *testing.T) {
	// batch_no column absent: nothing is processed.
	input := strings.Join([]string{
		"purchase_order_item_id,product_id,medicine_id,uom,accepted_qty,rejected_qty,expiry_date,reason",
		"11,100,,Nos,60,0,,",
	}, "\n")

	_, err := ParseWarehouseCSV(strings.NewReader(input))
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "missing required columns")
	require.Contains(t, err.Error(), "batch_no")
}

func TestParseWarehouseCSVCollectsRowErrors(t *testing.T) {
	input := strings.Join([]string{
		"purchase_order_item_id,product_id,medicine_id,uom,accepted_qty,rejected_qty,batch_no,expiry_date,reason",
		"11,100,,Nos,sixty,0,B-01,,",
		"12,100,,Nos,10,0,B-02,31-01-2026,",
		"13,100,,Nos,10,0,B-03,,",
	}, "\n")

	_, err := ParseWarehouseCSV(strings.NewReader(input))
	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Rows, 2)
	require.Contains(t, batch.Rows[0], "row 1")
	require.Contains(t, batch.Rows[1], "row 2")
}

func TestParseBranchCSVMinimumHeader(t *testing.T) {
	input := strings.Join([]string{
		"batch_no,received_qty",
		"B-01,10",
	}, "\n")

	rows, err := ParseBranchCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "B-01", rows[0].BatchNo)
	require.Equal(t, int64(10), rows[0].ReceivedQty)
}

func TestParseBranchCSVFullShape(t *testing.T) {
	input := strings.Join([]string{
		"product_id,medicine_id,uom,batch_no,expiry_date,received_qty,missing_qty,damaged_qty,expired_qty",
		"100,,Nos,B-01,2026-01-31,10,2,1,3",
	}, "\n")

	rows, err := ParseBranchCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0].MissingQty)
	require.Equal(t, int64(1), rows[0].DamagedQty)
	require.Equal(t, int64(3), rows[0].ExpiredQty)
}

func TestParseBranchCSVMissingReceivedQty(t *testing.T) {
	input := "batch_no\nB-01\n"

	_, err := ParseBranchCSV(strings.NewReader(input))
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "received_qty")
}
