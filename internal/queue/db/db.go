package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"fortune-queue/internal/models"
	"fortune-queue/internal/queue"
)

// DB implements queue.DBLayer on top of bun. Bun is either a *bun.DB or, for
// instances handed to a RunInTx callback, the transaction itself.
type DB struct {
	Bun bun.IDB
}

// activeStatuses is the "occupying the queue" set: waiting plus in progress.
var activeStatuses = []string{models.StatusQueued, models.StatusInProgress}

func (d *DB) CreateOrder(ctx context.Context, order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(ctx)
	return err
}

// GetOrderByID fetches one order. A missing row yields (nil, nil), not an
// error; callers decide whether absence is exceptional.
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) UpdateOrder(ctx context.Context, order models.Order) error {
	_, err := d.Bun.NewUpdate().
		Model(&order).
		Column("status", "queue_position", "estimated_wait_minutes",
			"reading_content", "reading_notes", "started_at", "completed_at").
		Where("order_id = ?", order.OrderID).
		Exec(ctx)
	return err
}

// ListQueuedOrders returns all waiting orders, oldest first. This is the
// renumbering input: FIFO by created_at, ties broken by order_id for a stable
// order under non-monotonic clocks.
func (d *DB) ListQueuedOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ?", models.StatusQueued).
		Order("created_at ASC", "order_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListActiveOrders returns queued and in-progress orders, oldest first.
func (d *DB) ListActiveOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status IN (?)", bun.In(activeStatuses)).
		Order("created_at ASC", "order_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// OldestQueuedOrder returns the next order to promote, or (nil, nil) when the
// queue is empty.
func (d *DB) OldestQueuedOrder(ctx context.Context) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("status = ?", models.StatusQueued).
		Order("created_at ASC", "order_id ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) CountActiveOrders(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("status IN (?)", bun.In(activeStatuses)).
		Count(ctx)
}

func (d *DB) CountActiveOrdersBefore(ctx context.Context, createdBefore time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("status IN (?)", bun.In(activeStatuses)).
		Where("created_at < ?", createdBefore).
		Count(ctx)
}

func (d *DB) CountInProgressOrders(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("status = ?", models.StatusInProgress).
		Count(ctx)
}

// CountOrdersCreatedBetween counts orders of any status with created_at in
// [from, to). Drives the daily-limit gate.
func (d *DB) CountOrdersCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("created_at >= ?", from).
		Where("created_at < ?", to).
		Count(ctx)
}

// RunInTx runs fn inside a single database transaction. Nested calls reuse
// the transaction already in flight.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx queue.DBLayer) error) error {
	bdb, ok := d.Bun.(*bun.DB)
	if !ok {
		return fn(ctx, d)
	}
	return bdb.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: tx})
	})
}
