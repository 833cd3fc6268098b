package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-info-extractor/internal/database"
	"github.com/maltedev/product-info-extractor/internal/models"
)

// fakeStore runs the transaction body with a nil tx and reports whether
// it would have committed.
type fakeStore struct {
	committed bool
	beginErr  error
}

func (s *fakeStore) Transaction(_ context.Context, fn func(pgx.Tx) error) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	if err := fn(nil); err != nil {
		return err
	}
	s.committed = true
	return nil
}

type MockSnapshots struct{ mock.Mock }

func (m *MockSnapshots) InsertWithTx(ctx context.Context, tx pgx.Tx, s *database.Snapshot) error {
	return m.Called(ctx, tx, s).Error(0)
}

type MockOutbox struct{ mock.Mock }

func (m *MockOutbox) InsertWithTx(ctx context.Context, tx pgx.Tx, e *database.OutboxEvent) error {
	return m.Called(ctx, tx, e).Error(0)
}

func testRecord() *models.RawProductRecord {
	yes := true
	return &models.RawProductRecord{
		URL:       "https://www.ugg.com/women-boots/classic-mini-ii-boot/1016222.html",
		Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Site:      "ugg",
		Product: models.Product{
			Name:    "Classic Mini II Boot",
			Price:   "$170",
			InStock: true,
			Variants: []models.Variant{
				{Color: "Chestnut", InStock: &yes},
				{Color: "Black"},
			},
			Sizes: []models.Size{
				{Size: "6", Available: true},
				{Size: "7"},
				{Size: "8", InStock: &yes},
			},
		},
		Images: models.ImageSet{MainImage: "https://dms.deckers.com/ugg/1016222-CHE_1.png"},
	}
}

func TestPublisher_Record(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	snapshots := new(MockSnapshots)
	outbox := new(MockOutbox)
	pub := newPublisher(store, snapshots, outbox, nil)

	var snap *database.Snapshot
	snapshots.On("InsertWithTx", ctx, mock.Anything, mock.AnythingOfType("*database.Snapshot")).
		Run(func(args mock.Arguments) { snap = args.Get(2).(*database.Snapshot) }).
		Return(nil)

	var event *database.OutboxEvent
	outbox.On("InsertWithTx", ctx, mock.Anything, mock.AnythingOfType("*database.OutboxEvent")).
		Run(func(args mock.Arguments) { event = args.Get(2).(*database.OutboxEvent) }).
		Return(nil)

	rec := testRecord()
	require.NoError(t, pub.Record(ctx, rec))
	assert.True(t, store.committed)

	require.NotNil(t, snap)
	assert.Equal(t, rec.URL, snap.URL)
	assert.Equal(t, "ugg", snap.Site)
	assert.Equal(t, 2, snap.VariantCount)
	assert.Equal(t, rec.Timestamp, snap.ExtractedAt)
	assert.NotEqual(t, uuid.Nil, snap.ID)

	var stored models.RawProductRecord
	require.NoError(t, json.Unmarshal(snap.Record, &stored))
	assert.Equal(t, "Classic Mini II Boot", stored.Product.Name)

	require.NotNil(t, event)
	assert.Equal(t, "PRODUCT_EXTRACTED", event.EventType)
	assert.Equal(t, "product_snapshot", event.AggregateType)
	assert.Equal(t, rec.URL, event.AggregateID)
	assert.Equal(t, database.StreamProductExtractions, event.TargetStream)

	var payload ProductExtractedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, snap.ID.String(), payload.SnapshotID)
	assert.Equal(t, []string{"Chestnut", "Black"}, payload.Colors)
	assert.Equal(t, []string{"6", "8"}, payload.InStockSizes)
}

func TestPublisher_RecordFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot insert fails", func(t *testing.T) {
		store := &fakeStore{}
		snapshots := new(MockSnapshots)
		outbox := new(MockOutbox)
		pub := newPublisher(store, snapshots, outbox, nil)

		snapshots.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("unique violation"))

		err := pub.Record(ctx, testRecord())

		assert.ErrorContains(t, err, "unique violation")
		assert.False(t, store.committed)
		outbox.AssertNotCalled(t, "InsertWithTx", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("outbox insert fails", func(t *testing.T) {
		store := &fakeStore{}
		snapshots := new(MockSnapshots)
		outbox := new(MockOutbox)
		pub := newPublisher(store, snapshots, outbox, nil)

		snapshots.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(nil)
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("disk full"))

		err := pub.Record(ctx, testRecord())

		assert.ErrorContains(t, err, "failed to archive extraction")
		assert.False(t, store.committed)
	})

	t.Run("database unavailable", func(t *testing.T) {
		store := &fakeStore{beginErr: errors.New("connection refused")}
		pub := newPublisher(store, new(MockSnapshots), new(MockOutbox), nil)

		assert.Error(t, pub.Record(ctx, testRecord()))
	})
}

func TestNewProductExtractedPayload(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.New()

	payload := NewProductExtractedPayload(&models.RawProductRecord{URL: "https://shop.weverse.io/p/1", Site: "weverse"}, id, now)

	assert.Equal(t, "PRODUCT_EXTRACTED", payload.EventType)
	assert.Equal(t, now, payload.Timestamp)
	assert.Equal(t, id.String(), payload.SnapshotID)
	assert.Nil(t, payload.Colors)
	assert.Nil(t, payload.InStockSizes)
	assert.NotEmpty(t, payload.EventID)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "colors")
}
