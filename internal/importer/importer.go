// Package importer loads orders exported from the legacy document store.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jogardn/laser-orders/internal/orders"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/sirupsen/logrus"
)

type Config struct {
	BatchSize    int           `json:"batch_size"`
	Concurrency  int           `json:"concurrency"`
	DelayBetween time.Duration `json:"delay_between"`
	DryRun       bool          `json:"dry_run"`
}

type Result struct {
	Total          int           `json:"total"`
	Imported       int           `json:"imported"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	Errors         []RecordError `json:"errors"`
	ProcessingTime time.Duration `json:"processing_time"`
	DryRun         bool          `json:"dry_run"`
	Timestamp      time.Time     `json:"timestamp"`
}

type RecordError struct {
	Record      int    `json:"record"`
	OrderNumber string `json:"order_number,omitempty"`
	Error       string `json:"error"`
}

type record struct {
	index int
	order models.Order
}

// Importer writes legacy orders straight into the repository, bypassing
// validation and repricing so historical numbers and prices survive.
type Importer struct {
	repo   orders.Repository
	logger *logrus.Logger
	config Config
}

func NewImporter(repo orders.Repository, logger *logrus.Logger) *Importer {
	return &Importer{
		repo:   repo,
		logger: logger,
		config: Config{
			BatchSize:   50,
			Concurrency: 5,
		},
	}
}

func (im *Importer) SetConfig(config Config) {
	if config.BatchSize < 1 {
		config.BatchSize = 50
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	im.config = config
	im.logger.WithFields(logrus.Fields{
		"batch_size":  config.BatchSize,
		"concurrency": config.Concurrency,
		"dry_run":     config.DryRun,
	}).Info("Import configuration updated")
}

// Import reads a JSON array or JSON lines of legacy documents from r. Records
// that cannot be decoded or mapped count as failures; the run goes on.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	start := time.Now()
	result := &Result{Errors: []RecordError{}, DryRun: im.config.DryRun, Timestamp: start.UTC()}

	docs, err := readDocuments(r)
	if err != nil {
		return nil, err
	}
	result.Total = len(docs)

	var records []record
	for i, raw := range docs {
		var doc legacyOrder
		if err := json.Unmarshal(raw, &doc); err != nil {
			result.fail(i+1, "", err)
			continue
		}
		order, err := doc.toOrder()
		if err != nil {
			result.fail(i+1, doc.OrderNumber, err)
			continue
		}
		records = append(records, record{index: i + 1, order: order})
	}

	im.logger.WithFields(logrus.Fields{
		"documents": result.Total,
		"mapped":    len(records),
		"dry_run":   im.config.DryRun,
	}).Info("Starting legacy order import")

	batches := im.createBatches(records)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, im.config.Concurrency)
	)
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []record) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			batchResult := im.processBatch(ctx, batch)
			<-semaphore

			mu.Lock()
			result.merge(batchResult)
			mu.Unlock()

			if im.config.DelayBetween > 0 {
				time.Sleep(im.config.DelayBetween)
			}
		}(batch)
	}
	wg.Wait()

	result.ProcessingTime = time.Since(start)
	im.logger.WithFields(logrus.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"duration": result.ProcessingTime,
	}).Info("Legacy order import completed")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (im *Importer) createBatches(records []record) [][]record {
	var batches [][]record
	for i := 0; i < len(records); i += im.config.BatchSize {
		end := i + im.config.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[i:end])
	}
	return batches
}

func (im *Importer) processBatch(ctx context.Context, batch []record) *Result {
	result := &Result{}

	for _, rec := range batch {
		if ctx.Err() != nil {
			return result
		}
		order := rec.order

		_, err := im.repo.FindByIdentifier(ctx, order.OrderNumber)
		switch {
		case err == nil:
			result.Skipped++
			im.logger.WithField("order_number", order.OrderNumber).Debug("Order already present, skipping")
			continue
		case !errors.Is(err, orders.ErrNotFound):
			result.fail(rec.index, order.OrderNumber, err)
			continue
		}

		if im.config.DryRun {
			result.Imported++
			continue
		}

		err = im.repo.Create(ctx, &order)
		switch {
		case errors.Is(err, orders.ErrDuplicateOrderNumber):
			result.Skipped++
		case err != nil:
			result.fail(rec.index, order.OrderNumber, err)
			im.logger.WithError(err).WithField("order_number", order.OrderNumber).Error("Failed to import order")
		default:
			result.Imported++
			im.logger.WithField("order_number", order.OrderNumber).Debug("Imported order")
		}
	}
	return result
}

func (r *Result) fail(index int, orderNumber string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RecordError{Record: index, OrderNumber: orderNumber, Error: err.Error()})
}

func (r *Result) merge(other *Result) {
	r.Imported += other.Imported
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// readDocuments splits the export into raw documents. A leading '[' means a
// JSON array; anything else is read as a stream of concatenated documents,
// which covers JSON lines.
func readDocuments(r io.Reader) ([]json.RawMessage, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var docs []json.RawMessage
		if err := dec.Decode(&docs); err != nil {
			return nil, fmt.Errorf("failed to decode export array: %w", err)
		}
		return docs, nil
	}

	var docs []json.RawMessage
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if err == io.EOF {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode export document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, raw)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
