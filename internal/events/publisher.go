// Package events archives extractions with the transactional outbox.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/product-info-extractor/internal/database"
	"github.com/maltedev/product-info-extractor/internal/models"
)

type EventType string

const (
	// EventTypeProductExtracted is published for every freshly computed
	// extraction.
	EventTypeProductExtracted EventType = "PRODUCT_EXTRACTED"

	aggregateSnapshot = "product_snapshot"
)

// ProductExtractedPayload is the event body consumers read from the stream.
type ProductExtractedPayload struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	SnapshotID   string    `json:"snapshot_id"`
	URL          string    `json:"url"`
	Site         string    `json:"site"`
	Name         string    `json:"name"`
	Price        string    `json:"price,omitempty"`
	InStock      bool      `json:"in_stock"`
	MainImage    string    `json:"main_image,omitempty"`
	Colors       []string  `json:"colors,omitempty"`
	InStockSizes []string  `json:"in_stock_sizes,omitempty"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

// Store runs fn in one transaction. *database.DB implements it.
type Store interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type snapshotWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, s *database.Snapshot) error
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, e *database.OutboxEvent) error
}

// Publisher stores each record as a snapshot and queues a
// PRODUCT_EXTRACTED event in the same transaction.
type Publisher struct {
	store     Store
	snapshots snapshotWriter
	outbox    outboxWriter
	logger    *slog.Logger
	now       func() time.Time
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return newPublisher(db, database.NewSnapshotRepository(db), database.NewOutboxRepository(db), logger)
}

func newPublisher(store Store, snapshots snapshotWriter, outbox outboxWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:     store,
		snapshots: snapshots,
		outbox:    outbox,
		logger:    logger.With("component", "event_publisher"),
		now:       time.Now,
	}
}

// Record archives rec.
func (p *Publisher) Record(ctx context.Context, rec *models.RawProductRecord) error {
	record, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	snap := &database.Snapshot{
		ID:           uuid.New(),
		URL:          rec.URL,
		Site:         rec.Site,
		Name:         rec.Product.Name,
		Price:        rec.Product.Price,
		InStock:      rec.Product.InStock,
		VariantCount: len(rec.Product.Variants),
		Record:       record,
		ExtractedAt:  rec.Timestamp,
	}

	payload := NewProductExtractedPayload(rec, snap.ID, p.now())
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateSnapshot,
		AggregateID:   rec.URL,
		EventType:     string(EventTypeProductExtracted),
		Payload:       data,
		TargetStream:  database.StreamProductExtractions,
	}

	err = p.store.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.snapshots.InsertWithTx(ctx, tx, snap); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to archive extraction: %w", err)
	}

	p.logger.Info("extraction archived",
		"event_id", payload.EventID,
		"snapshot_id", snap.ID,
		"url", rec.URL,
		"outbox_id", event.ID,
	)
	return nil
}

// NewProductExtractedPayload summarizes rec for stream consumers.
func NewProductExtractedPayload(rec *models.RawProductRecord, snapshotID uuid.UUID, now time.Time) *ProductExtractedPayload {
	payload := &ProductExtractedPayload{
		EventID:     uuid.New().String(),
		EventType:   string(EventTypeProductExtracted),
		Timestamp:   now,
		SnapshotID:  snapshotID.String(),
		URL:         rec.URL,
		Site:        rec.Site,
		Name:        rec.Product.Name,
		Price:       rec.Product.Price,
		InStock:     rec.Product.InStock,
		MainImage:   rec.Images.MainImage,
		ExtractedAt: rec.Timestamp,
	}

	for _, v := range rec.Product.Variants {
		if v.Color != "" {
			payload.Colors = append(payload.Colors, v.Color)
		}
	}
	for _, s := range rec.Product.Sizes {
		if s.IsInStock() {
			payload.InStockSizes = append(payload.InStockSizes, s.Size)
		}
	}
	return payload
}
