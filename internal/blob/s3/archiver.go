package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantflow/quantflow/internal/domain"
)

// archiveBatchSize is how many kline rows are exported per object.
const archiveBatchSize = 5000

// Archiver implements domain.Archiver by exporting aged kline rows to
// blob storage as JSONL and deleting them from Postgres. Each batch is
// deleted only after its upload succeeds, so a failed cycle leaves the
// remaining rows intact and the next cycle resumes from where this one
// stopped.
type Archiver struct {
	writer domain.BlobWriter
	klines domain.KlineStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver that moves klines from the given
// store into blob storage.
func NewArchiver(writer domain.BlobWriter, klines domain.KlineStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		klines: klines,
		logger: logger,
	}
}

// ArchiveBefore exports all klines with a timestamp before cutoff and
// then deletes them. It returns the number of rows removed from hot
// storage.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var archived int64
	for batch := 0; ; batch++ {
		klines, err := a.klines.OldestBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive query batch %d: %w", batch, err)
		}
		if len(klines) == 0 {
			break
		}

		buf, err := marshalJSONL(klines)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive marshal batch %d: %w", batch, err)
		}

		key := archiveKey(klines[0], batch)
		if err := a.writer.Write(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return archived, fmt.Errorf("s3blob: archive upload %s: %w", key, err)
		}

		// Delete only what this batch covered so the next OldestBefore
		// call advances past it.
		end := klines[len(klines)-1].Timestamp.Add(time.Nanosecond)
		if end.After(cutoff) {
			end = cutoff
		}
		deleted, err := a.klines.DeleteBefore(ctx, end)
		if err != nil {
			return archived, fmt.Errorf("s3blob: archive delete batch %d: %w", batch, err)
		}
		archived += deleted

		a.logger.Info("archived klines batch",
			"key", key,
			"rows", len(klines),
		)

		if len(klines) < archiveBatchSize {
			break
		}
	}
	return archived, nil
}

// archiveKey builds the blob key for an archive batch, partitioned by
// instrument and the day of the batch's first bar.
//
//	archive/klines/binance/BTC-USDT/1h/2025-01-02.0.jsonl
func archiveKey(first domain.Kline, batch int) string {
	return fmt.Sprintf("archive/klines/%s/%s/%s/%s.%d.jsonl",
		first.Exchange,
		sanitizeSymbol(first.Symbol),
		first.Timeframe,
		first.Timestamp.UTC().Format("2006-01-02"),
		batch,
	)
}

// sanitizeSymbol replaces the pair separator so symbols form clean key
// segments.
func sanitizeSymbol(symbol string) string {
	out := make([]byte, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			out[i] = '-'
		} else {
			out[i] = symbol[i]
		}
	}
	return string(out)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
