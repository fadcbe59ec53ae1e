package service

import (
	"context"
	"fmt"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

const defaultSeedBatch = 500

// SeedRepository is the write contract for bulk-loading internal records.
type SeedRepository interface {
	UpsertProfiles(ctx context.Context, profiles []domain.Profile) (int, error)
	UpsertOrders(ctx context.Context, orders []domain.Order) (int, error)
}

// Seeder bulk-loads internal records (profiles and orders) in concurrent batches.
type Seeder struct {
	repo      SeedRepository
	pool      *WorkerPool
	batchSize int
}

// NewSeeder creates a Seeder writing batchSize records per statement.
func NewSeeder(repo SeedRepository, workers, batchSize int) *Seeder {
	if batchSize <= 0 {
		batchSize = defaultSeedBatch
	}
	return &Seeder{repo: repo, pool: NewWorkerPool(workers), batchSize: batchSize}
}

// SeedProfiles upserts profiles and returns how many were written.
func (s *Seeder) SeedProfiles(ctx context.Context, profiles []domain.Profile) (int, error) {
	return seedBatches(ctx, s, profiles, func(batch []domain.Profile) (int, error) {
		n, err := s.repo.UpsertProfiles(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("profiles %s..%s: %w", batch[0].ID, batch[len(batch)-1].ID, err)
		}
		return n, nil
	})
}

// SeedOrders upserts orders and returns how many were written.
func (s *Seeder) SeedOrders(ctx context.Context, orders []domain.Order) (int, error) {
	return seedBatches(ctx, s, orders, func(batch []domain.Order) (int, error) {
		n, err := s.repo.UpsertOrders(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("orders %s..%s: %w", batch[0].ID, batch[len(batch)-1].ID, err)
		}
		return n, nil
	})
}

func seedBatches[T any](ctx context.Context, s *Seeder, items []T, write func([]T) (int, error)) (int, error) {
	batches := (len(items) + s.batchSize - 1) / s.batchSize
	written := make([]int, batches)
	err := s.pool.Run(ctx, batches, func(idx int) error {
		start := idx * s.batchSize
		end := min(start+s.batchSize, len(items))
		n, err := write(items[start:end])
		written[idx] = n
		return err
	})
	total := 0
	for _, n := range written {
		total += n
	}
	return total, err
}
