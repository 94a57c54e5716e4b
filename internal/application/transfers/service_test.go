package transfers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"arrozal-backend/internal/application/extraction"
	"arrozal-backend/internal/application/ledger"
	"arrozal-backend/internal/domain"
	"arrozal-backend/internal/pkg/silolock"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTransferTest(t *testing.T) (*Service, *ledger.Service) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Silo{}, &domain.Batch{}, &domain.TransferRecord{}, &domain.Reservation{},
	))
	ledgerSvc := &ledger.Service{DB: db}
	return &Service{DB: db, Ledger: ledgerSvc}, ledgerSvc
}

func seedSourceSilo(t *testing.T, l *ledger.Service) *domain.Silo {
	ctx := context.Background()
	silo, err := l.CreateSilo(ctx, "Silo A", domain.SiloTypeStorage, 100, 8.5)
	require.NoError(t, err)

	_, err = l.AcceptDelivery(ctx, silo.SiloID, domain.Provenance{
		DeliveryRef:   "RM-1001",
		PlotRef:       "plot-1",
		Variety:       "X",
		Certification: domain.CertOrganic,
		MoisturePct:   12.0,
		BrokenPct:     2.0,
	}, 25.5)
	require.NoError(t, err)

	_, err = l.AcceptDelivery(ctx, silo.SiloID, domain.Provenance{
		DeliveryRef:   "RM-1002",
		PlotRef:       "plot-2",
		Variety:       "Y",
		Certification: domain.CertConventional,
		MoisturePct:   14.5,
		BrokenPct:     5.0,
	}, 28.0)
	require.NoError(t, err)
	return silo
}

func TestExecuteSiloToSilo_EndToEnd(t *testing.T) {
	s, l := setupTransferTest(t)
	ctx := context.Background()
	source := seedSourceSilo(t, l)
	dest, err := l.CreateSilo(ctx, "Silo B", domain.SiloTypeStorage, 100, 8.5)
	require.NoError(t, err)

	record, err := s.ExecuteSiloToSilo(ctx, source.SiloID, dest.SiloID, 20, domain.PolicyProportionalMix, "pre-drying move")
	require.NoError(t, err)
	require.NotNil(t, record.DestSiloID)
	assert.Equal(t, dest.SiloID, *record.DestSiloID)
	assert.Nil(t, record.SalesOrderRef)
	assert.Equal(t, 20.0, record.TotalAmount)
	assert.Equal(t, domain.PolicyProportionalMix, record.Policy)
	assert.Equal(t, "pre-drying move", record.Notes)

	sourceState, err := l.GetSiloState(ctx, source.SiloID)
	require.NoError(t, err)
	assert.Equal(t, 33.5, sourceState.Silo.Occupancy)

	destState, err := l.GetSiloState(ctx, dest.SiloID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, destState.Silo.Occupancy)
	require.Len(t, destState.Batches, 2)

	// New layers, provenance carried over, original tonnage = transferred amount.
	byVariety := map[string]domain.Batch{}
	for _, b := range destState.Batches {
		byVariety[b.Variety] = b
	}
	bx, by := byVariety["X"], byVariety["Y"]
	assert.Equal(t, 9.53, bx.RemainingTonnage)
	assert.Equal(t, 9.53, bx.OriginalTonnage)
	assert.Equal(t, domain.CertOrganic, bx.Certification)
	assert.Equal(t, "plot-1", bx.PlotRef)
	require.NotNil(t, bx.OriginBatchID)
	assert.Equal(t, 10.47, by.RemainingTonnage)
	assert.Equal(t, 0, bx.LayerOrder)
	assert.Equal(t, 1, by.LayerOrder)

	var lines []extraction.PlanLine
	require.NoError(t, json.Unmarshal(record.Breakdown, &lines))
	assert.Len(t, lines, 2)
}

func TestExecuteSiloToSilo_FifoDrainsBottomLayer(t *testing.T) {
	s, l := setupTransferTest(t)
	ctx := context.Background()
	source := seedSourceSilo(t, l)
	dest, err := l.CreateSilo(ctx, "Silo B", domain.SiloTypeStorage, 100, 8.5)
	require.NoError(t, err)

	_, err = s.ExecuteSiloToSilo(ctx, source.SiloID, dest.SiloID, 25.5, domain.PolicyFifoLayers, "")
	require.NoError(t, err)

	sourceState, err := l.GetSiloState(ctx, source.SiloID)
	require.NoError(t, err)
	require.Len(t, sourceState.Batches, 1)
	assert.Equal(t, "Y", sourceState.Batches[0].Variety)
	assert.Equal(t, 28.0, sourceState.Batches[0].RemainingTonnage)
}

func TestExecuteSiloToSilo_CapacityExceededIsAtomic(t *testing.T) {
	s, l := setupTransferTest(t)
	ctx := context.Background()
	source := seedSourceSilo(t, l)
	dest, err := l.CreateSilo(ctx, "Silo B", domain.SiloTypeStorage, 15, 6.0)
	require.NoError(t, err)

	_, err = s.ExecuteSiloToSilo(ctx, source.SiloID, dest.SiloID, 20, domain.PolicyProportionalMix, "")
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)

	var lerr *domain.LedgerError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, dest.SiloID, lerr.SiloID)
	assert.Equal(t, 15.0, lerr.Available)

	// Nothing persisted on either side.
	sourceState, err := l.GetSiloState(ctx, source.SiloID)
	require.NoError(t, err)
	assert.Equal(t, 53.5, sourceState.Silo.Occupancy)
	destState, err := l.GetSiloState(ctx, dest.SiloID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, destState.Silo.Occupancy)

	var count int64
	require.NoError(t, s.DB.Model(&domain.TransferRecord{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestExecuteSiloToSilo_PlanErrorsPropagate(t *testing.T) {
	s, l := setupTransferTest(t)
	ctx := context.Background()
	source := seedSourceSilo(t, l)
	dest, err := l.CreateSilo(ctx, "Silo B", domain.SiloTypeStorage, 100, 8.5)
	require.NoError(t, err)

	_, err = s.ExecuteSiloToSilo(ctx, source.SiloID, dest.SiloID, 100, domain.PolicyFifoLayers, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = s.ExecuteSiloToSilo(ctx, source.SiloID, dest.SiloID, -1, domain.PolicyFifoLayers, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = s.ExecuteSiloToSilo(ctx, uuid.New(), dest.SiloID, 5, domain.PolicyFifoLayers, "")
	assert.ErrorIs(t, err, domain.ErrSiloNotFound)
}

func TestExecuteSaleReservation(t *testing.T) {
	s, l := setupTransferTest(t)
	ctx := context.Background()
	source := seedSourceSilo(t, l)

	set, err := s.ExecuteSaleReservation(ctx, source.SiloID, 30, domain.PolicyFifoLayers, "SO-2025-0042", "first dispatch window")
	require.NoError(t, err)
	assert.Equal(t, "SO-2025-0042", set.SalesOrderRef)
	assert.Equal(t, 30.0, set.TotalAmount)
	require.Len(t, set.Reservations, 2)
	assert.Equal(t, 25.5, set.Reservations[0].Tonnage)
	assert.Equal(t, 4.5, set.Reservations[1].Tonnage)

	// Assignment is a physical commitment: occupancy drops now.
	state, err := l.GetSiloState(ctx, source.SiloID)
	require.NoError(t, err)
	assert.Equal(t, 23.5, state.Silo.Occupancy)

	// One audit record with the sale as destination.
	records, err := l.ListTransfers(ctx, source.SiloID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].DestSiloID)
	require.NotNil(t, records[0].SalesOrderRef)
	assert.Equal(t, "SO-2025-0042", *records[0].SalesOrderRef)

	reservations, err := l.ListReservations(ctx, "SO-2025-0042")
	require.NoError(t, err)
	assert.Len(t, reservations, 2)
}

func TestExecuteSaleReservation_InsufficientIsAtomic(t *testing.T) {
	s, l := setupTransferTest(t)
	ctx := context.Background()
	source := seedSourceSilo(t, l)

	_, err := s.ExecuteSaleReservation(ctx, source.SiloID, 60, domain.PolicyProportionalMix, "SO-1", "")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	state, err := l.GetSiloState(ctx, source.SiloID)
	require.NoError(t, err)
	assert.Equal(t, 53.5, state.Silo.Occupancy)

	var count int64
	require.NoError(t, s.DB.Model(&domain.Reservation{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestExecuteSiloToSilo_UnderLocks(t *testing.T) {
	s, l := setupTransferTest(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locks := &silolock.Locker{Rdb: rdb, Wait: 200 * time.Millisecond, TTL: 5 * time.Second}
	s.Locks = locks
	l.Locks = locks

	source := seedSourceSilo(t, l)
	dest, err := l.CreateSilo(ctx, "Silo B", domain.SiloTypeStorage, 100, 8.5)
	require.NoError(t, err)

	_, err = s.ExecuteSiloToSilo(ctx, source.SiloID, dest.SiloID, 10, domain.PolicyFifoLayers, "")
	require.NoError(t, err)

	// Locks released: a second transfer goes through immediately.
	_, err = s.ExecuteSiloToSilo(ctx, source.SiloID, dest.SiloID, 10, domain.PolicyFifoLayers, "")
	require.NoError(t, err)

	// A held source lock makes the operation fail fast with ResourceBusy.
	lease, err := locks.Acquire(ctx, source.SiloID)
	require.NoError(t, err)
	defer lease.Release(ctx)
	_, err = s.ExecuteSiloToSilo(ctx, source.SiloID, dest.SiloID, 5, domain.PolicyFifoLayers, "")
	assert.ErrorIs(t, err, domain.ErrResourceBusy)
}
