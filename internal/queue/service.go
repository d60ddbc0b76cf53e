package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fortune-queue/internal/config"
	"fortune-queue/internal/logger"
	"fortune-queue/internal/models"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyReading       = errors.New("reading content cannot be empty")
	ErrPositionAssignment = errors.New("queue position was not assigned after recompute")
	ErrDailyLimitReached  = errors.New("daily order limit reached")
	ErrOperatorBusy       = errors.New("in-progress limit reached")
)

// DBLayer is the persistence contract the scheduler needs. Implementations
// must make each call individually atomic; RunInTx serializes a compound
// sequence of calls into one transaction.
type DBLayer interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order models.Order) error
	ListQueuedOrders(ctx context.Context) ([]models.Order, error)
	ListActiveOrders(ctx context.Context) ([]models.Order, error)
	OldestQueuedOrder(ctx context.Context) (*models.Order, error)
	CountActiveOrders(ctx context.Context) (int, error)
	CountActiveOrdersBefore(ctx context.Context, createdBefore time.Time) (int, error)
	CountInProgressOrders(ctx context.Context) (int, error)
	CountOrdersCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx DBLayer) error) error
}

// PromotionLock guards processNextOrder against two operators promoting the
// same order. A nil lock means single-process deployment, no guard.
type PromotionLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Notifier delivers the completed-reading email. Delivery failure never rolls
// back the state transition.
type Notifier interface {
	SendReadingCompleted(ctx context.Context, order models.Order) error
}

type EventPublisher interface {
	PublishOrderQueued(order models.Order) error
	PublishOrderStarted(order models.Order) error
	PublishOrderCompleted(order models.Order) error
	PublishOrderCancelled(order models.Order) error
}

type QueueService struct {
	DB       DBLayer
	Lock     PromotionLock
	Notifier Notifier
	Events   EventPublisher
	Config   config.QueueConfig
	Logger   *logger.Logger

	// Now is the injected clock. Defaults to time.Now in NewQueueService.
	Now func() time.Time
}

func NewQueueService(db DBLayer, lock PromotionLock, notifier Notifier, events EventPublisher, cfg config.QueueConfig, log *logger.Logger) *QueueService {
	return &QueueService{
		DB:       db,
		Lock:     lock,
		Notifier: notifier,
		Events:   events,
		Config:   cfg,
		Logger:   log,
		Now:      time.Now,
	}
}

// ---------------- INTAKE ----------------

// CreateOrder registers a new order in pending_payment. The daily limit gates
// acceptance here, upstream of the queue itself.
func (s *QueueService) CreateOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	stats, err := s.GetQueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check queue stats: %w", err)
	}
	if !stats.CanAcceptNewOrders {
		return nil, ErrDailyLimitReached
	}

	order := models.Order{
		OrderID:       uuid.NewString(),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Status:        models.StatusPendingPayment,
		CreatedAt:     s.Now().UTC(),
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.Logger.LogOrder("CREATE", order.OrderID, "order created, awaiting payment")
	return &order, nil
}

// ---------------- READS ----------------

// GetQueueStats computes the public queue snapshot over the current UTC
// calendar day. Pure read, no side effects; under concurrent writers the
// counts may come from slightly different instants.
func (s *QueueService) GetQueueStats(ctx context.Context) (*models.QueueStats, error) {
	now := s.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	totalInQueue, err := s.DB.CountActiveOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active orders: %w", err)
	}

	dailyOrders, err := s.DB.CountOrdersCreatedBetween(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count daily orders: %w", err)
	}

	return &models.QueueStats{
		TotalInQueue:       totalInQueue,
		EstimatedWaitTime:  totalInQueue * s.Config.ServiceTimeMinutes,
		DailyLimit:         s.Config.DailyLimit,
		DailyOrders:        dailyOrders,
		CanAcceptNewOrders: dailyOrders < s.Config.DailyLimit,
	}, nil
}

// GetQueuePosition recomputes an order's live position from created_at,
// independent of the cached queue_position column. Orders still in progress
// count ahead of waiting ones. A missing or terminal order yields (nil, nil).
func (s *QueueService) GetQueuePosition(ctx context.Context, orderID string) (*models.QueuePosition, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	if order == nil || order.IsTerminal() {
		return nil, nil
	}

	ahead, err := s.DB.CountActiveOrdersBefore(ctx, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders ahead of %s: %w", orderID, err)
	}

	position := ahead + 1
	return &models.QueuePosition{
		OrderID:           order.OrderID,
		Position:          position,
		EstimatedWaitTime: (position - 1) * s.Config.ServiceTimeMinutes,
		Status:            order.Status,
	}, nil
}

// ListQueue returns the stats snapshot plus every queued and in-progress
// order, oldest first. Admin view.
func (s *QueueService) ListQueue(ctx context.Context) (*models.QueueStats, []models.Order, error) {
	stats, err := s.GetQueueStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	orders, err := s.DB.ListActiveOrders(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list active orders: %w", err)
	}
	return stats, orders, nil
}

// ---------------- MUTATIONS ----------------

// ConfirmPayment moves an order from pending_payment into the queue and
// assigns its position. Invoked by the payment webhook or the payment-success
// topic consumer.
func (s *QueueService) ConfirmPayment(ctx context.Context, orderID string) (*models.QueuePosition, error) {
	var queued models.Order
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx DBLayer) error {
		order, err := tx.GetOrderByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to fetch order %s: %w", orderID, err)
		}
		if order == nil {
			return ErrOrderNotFound
		}

		next, err := Transition(order.OrderID, order.Status, ActionConfirmPayment)
		if err != nil {
			return err
		}
		order.Status = next
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("failed to mark order %s queued: %w", orderID, err)
		}
		queued = *order
		return nil
	})
	if err != nil {
		return nil, err
	}

	pos, err := s.AddToQueue(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("QUEUE", orderID, fmt.Sprintf("payment confirmed, position %d", pos.Position))
	s.publish("order_queued", queued)
	return pos, nil
}

// AddToQueue assigns a position to an order that is already in queued status.
// It does not transition status itself; a non-queued order is rejected.
func (s *QueueService) AddToQueue(ctx context.Context, orderID string) (*models.QueuePosition, error) {
	var result *models.QueuePosition
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx DBLayer) error {
		order, err := tx.GetOrderByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to fetch order %s: %w", orderID, err)
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.Status != models.StatusQueued {
			return &TransitionError{OrderID: orderID, From: order.Status, Action: ActionConfirmPayment}
		}

		if err := s.recomputePositions(ctx, tx); err != nil {
			return err
		}

		// Re-read the persisted position after the global recompute.
		order, err = tx.GetOrderByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to re-read order %s: %w", orderID, err)
		}
		if order == nil || order.QueuePosition == nil || order.EstimatedWaitMinutes == nil {
			return ErrPositionAssignment
		}

		result = &models.QueuePosition{
			OrderID:           order.OrderID,
			Position:          *order.QueuePosition,
			EstimatedWaitTime: *order.EstimatedWaitMinutes,
			Status:            order.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateQueuePositions renumbers every queued order into a dense 1..N sequence
// by created_at. Idempotent; the only writer of queue_position and
// estimated_wait_minutes. In-progress orders keep their last values, their
// status alone marks those columns void.
func (s *QueueService) UpdateQueuePositions(ctx context.Context) error {
	return s.DB.RunInTx(ctx, s.recomputePositions)
}

func (s *QueueService) recomputePositions(ctx context.Context, tx DBLayer) error {
	orders, err := tx.ListQueuedOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queued orders: %w", err)
	}

	for i := range orders {
		position := i + 1
		wait := i * s.Config.ServiceTimeMinutes
		orders[i].QueuePosition = &position
		orders[i].EstimatedWaitMinutes = &wait
		if err := tx.UpdateOrder(ctx, orders[i]); err != nil {
			return fmt.Errorf("failed to renumber order %s: %w", orders[i].OrderID, err)
		}
	}

	s.Logger.LogQueue("RECOMPUTE", fmt.Sprintf("renumbered %d queued orders", len(orders)))
	return nil
}

// ProcessNextOrder promotes the oldest queued order to in_progress and
// renumbers the rest. Returns (nil, nil) on an empty queue. The Redis lock
// makes promotion at-most-once across concurrent operators.
func (s *QueueService) ProcessNextOrder(ctx context.Context) (*models.Order, error) {
	if s.Lock != nil {
		ok, err := s.Lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire promotion lock: %w", err)
		}
		if !ok {
			return nil, ErrOperatorBusy
		}
		defer func() {
			if err := s.Lock.Release(ctx); err != nil {
				s.Logger.Error("QUEUE", fmt.Sprintf("failed to release promotion lock: %v", err))
			}
		}()
	}

	var promoted *models.Order
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx DBLayer) error {
		if s.Config.InProgressLimit > 0 {
			open, err := tx.CountInProgressOrders(ctx)
			if err != nil {
				return fmt.Errorf("failed to count in-progress orders: %w", err)
			}
			if open >= s.Config.InProgressLimit {
				return ErrOperatorBusy
			}
		}

		order, err := tx.OldestQueuedOrder(ctx)
		if err != nil {
			return fmt.Errorf("failed to find oldest queued order: %w", err)
		}
		if order == nil {
			return nil
		}

		next, err := Transition(order.OrderID, order.Status, ActionStart)
		if err != nil {
			return err
		}
		startedAt := s.Now().UTC()
		order.Status = next
		order.StartedAt = &startedAt

		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("failed to promote order %s: %w", order.OrderID, err)
		}
		if err := s.recomputePositions(ctx, tx); err != nil {
			return err
		}

		promoted = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if promoted == nil {
		s.Logger.LogQueue("NEXT", "queue is empty, nothing to promote")
		return nil, nil
	}

	s.Logger.LogOrder("START", promoted.OrderID, "reading in progress")
	s.publish("order_started", *promoted)
	return promoted, nil
}

// CompleteOrder finishes an in-progress reading, stores its content and sends
// the customer email. The returned flag reports notification delivery only;
// the state transition has already been committed when it is false.
func (s *QueueService) CompleteOrder(ctx context.Context, orderID, readingContent, readingNotes string) (*models.Order, bool, error) {
	if readingContent == "" {
		return nil, false, ErrEmptyReading
	}

	var completed models.Order
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx DBLayer) error {
		order, err := tx.GetOrderByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to fetch order %s: %w", orderID, err)
		}
		if order == nil {
			return ErrOrderNotFound
		}

		next, err := Transition(order.OrderID, order.Status, ActionComplete)
		if err != nil {
			return err
		}
		completedAt := s.Now().UTC()
		order.Status = next
		order.CompletedAt = &completedAt
		order.ReadingContent = readingContent
		order.ReadingNotes = readingNotes

		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("failed to complete order %s: %w", orderID, err)
		}
		if err := s.recomputePositions(ctx, tx); err != nil {
			return err
		}

		completed = *order
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.Logger.LogOrder("COMPLETE", orderID, "reading completed")
	s.publish("order_completed", completed)

	// Fire-and-forget: the transition is already committed, a failed email is
	// logged and reported via the flag but never undoes it.
	notified := true
	if err := s.Notifier.SendReadingCompleted(ctx, completed); err != nil {
		notified = false
		s.Logger.Error("EMAIL", fmt.Sprintf("completion notification for order %s failed: %v", orderID, err))
	}

	return &completed, notified, nil
}

// CancelOrder cancels a non-terminal order and renumbers the queue. No
// notification is sent.
func (s *QueueService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var cancelled models.Order
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx DBLayer) error {
		order, err := tx.GetOrderByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to fetch order %s: %w", orderID, err)
		}
		if order == nil {
			return ErrOrderNotFound
		}

		next, err := Transition(order.OrderID, order.Status, ActionCancel)
		if err != nil {
			return err
		}
		order.Status = next

		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
		}
		if err := s.recomputePositions(ctx, tx); err != nil {
			return err
		}

		cancelled = *order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("CANCEL", orderID, "order cancelled")
	s.publish("order_cancelled", cancelled)
	return &cancelled, nil
}

func (s *QueueService) publish(event string, order models.Order) {
	if s.Events == nil {
		return
	}
	var err error
	switch event {
	case "order_queued":
		err = s.Events.PublishOrderQueued(order)
	case "order_started":
		err = s.Events.PublishOrderStarted(order)
	case "order_completed":
		err = s.Events.PublishOrderCompleted(order)
	case "order_cancelled":
		err = s.Events.PublishOrderCancelled(order)
	}
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish %s for order %s failed: %v", event, order.OrderID, err))
	}
}
