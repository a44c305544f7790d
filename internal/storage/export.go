package storage

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetRun is the parquet layout of a journal row.
type ParquetRun struct {
	ID           int64   `parquet:"name=id, type=INT64"`
	CreatedAtMs  int64   `parquet:"name=created_at_ms, type=INT64"`
	Asset        string  `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Intermediate string  `parquet:"name=intermediate, type=BYTE_ARRAY, convertedtype=UTF8"`
	SellPool     string  `parquet:"name=sell_pool, type=BYTE_ARRAY, convertedtype=UTF8"`
	BuyPool      string  `parquet:"name=buy_pool, type=BYTE_ARRAY, convertedtype=UTF8"`
	Orientation  string  `parquet:"name=orientation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Borrowed     string  `parquet:"name=borrowed, type=BYTE_ARRAY, convertedtype=UTF8"`
	Premium      string  `parquet:"name=premium, type=BYTE_ARRAY, convertedtype=UTF8"`
	Proceeds     string  `parquet:"name=proceeds, type=BYTE_ARRAY, convertedtype=UTF8"`
	Profit       string  `parquet:"name=profit, type=BYTE_ARRAY, convertedtype=UTF8"`
	SpreadPct    float64 `parquet:"name=spread_pct, type=DOUBLE"`
	Stage        string  `parquet:"name=stage, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reached      string  `parquet:"name=reached, type=BYTE_ARRAY, convertedtype=UTF8"`
	Success      bool    `parquet:"name=success, type=BOOLEAN"`
	RevertReason string  `parquet:"name=revert_reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	BlockNumber  int64   `parquet:"name=block_number, type=INT64"`
	GasUsed      int64   `parquet:"name=gas_used, type=INT64"`
}

func toParquet(rec RunRecord) ParquetRun {
	return ParquetRun{
		ID:           rec.ID,
		CreatedAtMs:  rec.CreatedAt.UnixMilli(),
		Asset:        rec.Asset,
		Intermediate: rec.Intermediate,
		SellPool:     rec.SellPool,
		BuyPool:      rec.BuyPool,
		Orientation:  rec.Orientation,
		Borrowed:     rec.Borrowed,
		Premium:      rec.Premium,
		Proceeds:     rec.Proceeds,
		Profit:       rec.Profit,
		SpreadPct:    rec.SpreadPct,
		Stage:        rec.Stage,
		Reached:      rec.Reached,
		Success:      rec.Success,
		RevertReason: rec.RevertReason,
		BlockNumber:  int64(rec.BlockNumber),
		GasUsed:      int64(rec.GasUsed),
	}
}

// ExportParquet writes every journal row to a snappy-compressed parquet file
// and returns the number of rows written.
func (j *Journal) ExportParquet(path string) (int, error) {
	runs, err := j.ListRuns(0)
	if err != nil {
		return 0, err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRun), 4)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	// oldest first
	for i := len(runs) - 1; i >= 0; i-- {
		if err := pw.Write(toParquet(runs[i])); err != nil {
			return 0, fmt.Errorf("failed to write row %d: %w", runs[i].ID, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return 0, fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return len(runs), nil
}

// ReadParquet loads an exported file back.
func ReadParquet(path string) ([]ParquetRun, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ParquetRun), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	rows := make([]ParquetRun, numRows)
	if numRows == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}
