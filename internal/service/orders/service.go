package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sahaalaf/sashop/internal/domain"
	"github.com/sahaalaf/sashop/internal/metrics"
)

// LineItem — позиция заказа в том виде, в каком её прислал клиент.
// Из неё берутся только ProductID и Quantity: цена и название читаются из каталога.
type LineItem struct {
	ProductID  string
	Quantity   int32
	Name       string
	Image      string
	PriceMinor int64
}

// PlaceOrderCommand — входные данные оформления заказа.
type PlaceOrderCommand struct {
	UserID          string
	Items           []LineItem
	Shipping        *domain.ShippingInfo
	PaymentMethod   domain.PaymentMethod
	StripePaymentID string
	// ClientTotals — суммы, посчитанные клиентом; только сверяются с серверными.
	ClientTotals   *domain.Totals
	IdempotencyKey string
}

// UpdateStatusCommand — запрос на смену статуса заказа.
type UpdateStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
	Reason  string
}

// OrderDetails — заказ вместе с его timeline.
type OrderDetails struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// Service оформляет заказы, меняет их статусы и отвечает на запросы об остатках.
type Service struct {
	uow      domain.UnitOfWork
	products domain.ProductRepository
	orders   domain.OrderRepository
	timeline domain.TimelineRepository

	logger             *log.Entry
	metrics            *metrics.OrderMetrics
	shippingPriceMinor int64
	policy             domain.TransitionPolicy
	now                func() time.Time
	newID              func() string
}

// NewService создаёт сервис заказов.
func NewService(
	uow domain.UnitOfWork,
	products domain.ProductRepository,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	options ...Option,
) *Service {
	s := &Service{
		uow:                uow,
		products:           products,
		orders:             orders,
		timeline:           timeline,
		logger:             log.WithField("component", "orders"),
		shippingPriceMinor: DefaultShippingPriceMinor,
		policy:             domain.TransitionPolicyLenient,
		now:                func() time.Time { return time.Now().UTC() },
		newID:              uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CheckStock сообщает доступность каждой позиции по зафиксированным остаткам.
// Ничего не меняет; результат может устареть к моменту оформления заказа.
func (s *Service) CheckStock(ctx context.Context, requests []domain.StockRequest) (domain.StockReport, error) {
	if len(requests) == 0 {
		return domain.StockReport{}, domain.ErrItemsRequired
	}

	report := domain.StockReport{
		InStock:    true,
		Results:    make([]domain.StockResult, 0, len(requests)),
		OutOfStock: make([]domain.StockResult, 0),
	}
	for _, req := range requests {
		productID := strings.TrimSpace(req.ProductID)
		if productID == "" {
			return domain.StockReport{}, domain.ErrItemProductRequired
		}
		if req.Quantity < 1 {
			return domain.StockReport{}, domain.ErrItemQtyInvalid
		}

		result := domain.StockResult{ProductID: productID, Requested: req.Quantity}
		product, err := s.products.Get(ctx, productID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			result.Reason = domain.StockReasonNotFound
		case err != nil:
			return domain.StockReport{}, fmt.Errorf("check stock of %s: %w", productID, err)
		default:
			result.Name = product.Name
			result.OnHand = product.Quantity
			result.Available = product.Quantity >= req.Quantity
		}

		report.Results = append(report.Results, result)
		if !result.Available {
			report.InStock = false
			report.OutOfStock = append(report.OutOfStock, result)
		}
	}

	s.metrics.RecordStockCheck(report.InStock)
	return report, nil
}

// PlaceOrder атомарно создаёт заказ и списывает остатки либо не делает ничего.
func (s *Service) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	if err := validatePlaceOrder(cmd); err != nil {
		s.metrics.RecordOrderRejected(metrics.RejectReasonValidation)
		return domain.Order{}, err
	}

	logger := s.logger.WithFields(log.Fields{"operation": "place_order", "user_id": cmd.UserID})
	demand := aggregateDemand(cmd.Items)

	var placed domain.Order
	start := time.Now()
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		catalog := make(map[string]domain.Product, len(demand))
		for _, line := range demand {
			product, err := tx.Product(ctx, line.productID)
			if err != nil {
				return err
			}
			// снятый с продажи товар остаётся в БД только ради возвратов
			if product.Archived() {
				return &domain.ProductNotFoundError{ProductID: product.ID}
			}
			if int64(product.Quantity) < line.quantity {
				return &domain.InsufficientStockError{
					ProductID: product.ID,
					Name:      product.Name,
					Available: product.Quantity,
					Requested: int32(min(line.quantity, math.MaxInt32)),
				}
			}
			catalog[product.ID] = product
		}

		order := s.buildOrder(cmd, catalog)
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for _, line := range demand {
			if err := tx.DebitStock(ctx, line.productID, int32(line.quantity)); err != nil {
				return err
			}
		}
		if err := tx.AppendUserOrder(ctx, order.UserID, order.ID); err != nil {
			return err
		}
		if err := tx.AppendTimeline(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineOrderCreated,
			Occurred: order.CreatedAt,
		}); err != nil {
			return err
		}
		if err := s.enqueueEvent(ctx, tx, domain.EventOrderCreated, order, ""); err != nil {
			return err
		}

		placed = order
		return nil
	})
	s.metrics.RecordTxDuration("place_order", time.Since(start))

	if err != nil {
		s.recordRejection(logger, err)
		return domain.Order{}, err
	}

	units := 0
	for _, line := range demand {
		units += int(line.quantity)
	}
	s.metrics.RecordOrderPlaced(units)
	s.compareClientTotals(logger, cmd.ClientTotals, placed)

	logger.WithFields(log.Fields{
		"order_id":          placed.ID,
		"total_price_minor": placed.TotalPriceMinor,
	}).Info("order placed")
	return placed, nil
}

// UpdateStatus меняет статус заказа; при отмене возвращает позиции на склад.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	if !cmd.Status.Valid() {
		return domain.Order{}, domain.ErrOrderStatusInvalid
	}

	logger := s.logger.WithFields(log.Fields{"operation": "update_status", "order_id": cmd.OrderID})

	var (
		updated  domain.Order
		previous domain.OrderStatus
		restored int
	)
	start := time.Now()
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Order(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		previous = order.Status

		if !s.policy.CanTransition(order.Status, cmd.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrOrderTransitionNotAllowed, order.Status, cmd.Status)
		}
		if order.Status == cmd.Status {
			updated = order
			return nil
		}

		now := s.now()
		if cmd.Status == domain.OrderStatusCancelled {
			for _, item := range order.Items {
				if err := tx.CreditStock(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
				restored += int(item.Quantity)
			}
		}

		order.Status = cmd.Status
		order.UpdatedAt = now
		if cmd.Status == domain.OrderStatusDelivered {
			order.DeliveredAt = &now
			// Наличные получены курьером при доставке.
			if order.Payment.Method == domain.PaymentMethodCOD && order.Payment.Status == domain.PaymentStatusPending {
				order.Payment.Status = domain.PaymentStatusPaid
			}
		}
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}

		if err := s.appendStatusTimeline(ctx, tx, order, previous, cmd.Reason, now); err != nil {
			return err
		}

		eventType := domain.EventOrderStatusChanged
		if cmd.Status == domain.OrderStatusCancelled {
			eventType = domain.EventOrderCancelled
		}
		if err := s.enqueueEvent(ctx, tx, eventType, order, previous); err != nil {
			return err
		}

		updated = order
		return nil
	})
	s.metrics.RecordTxDuration("update_status", time.Since(start))

	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrOrderTransitionNotAllowed) {
			logger.WithError(err).Warn("status update rejected")
		} else {
			logger.WithError(err).Error("status update failed")
		}
		return domain.Order{}, err
	}

	if previous == updated.Status {
		logger.WithField("status", updated.Status).Debug("status unchanged, nothing to do")
		return updated, nil
	}

	s.metrics.RecordStatusTransition(string(previous), string(updated.Status))
	if restored > 0 {
		s.metrics.RecordStockRestored(restored)
	}
	logger.WithFields(log.Fields{
		"from":           previous,
		"to":             updated.Status,
		"units_restored": restored,
	}).Info("order status changed")
	return updated, nil
}

// GetOrder возвращает заказ и его timeline.
func (s *Service) GetOrder(ctx context.Context, orderID string) (OrderDetails, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderDetails{}, err
	}
	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		return OrderDetails{}, fmt.Errorf("load timeline of %s: %w", orderID, err)
	}
	return OrderDetails{Order: order, Timeline: events}, nil
}

// ListOrders возвращает все заказы, новые первыми.
func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.orders.List(ctx, limit)
}

// ListUserOrders возвращает историю заказов покупателя.
func (s *Service) ListUserOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUserRequired
	}
	return s.orders.ListByUser(ctx, userID, limit)
}

// DailyRevenue возвращает выручку по дням.
func (s *Service) DailyRevenue(ctx context.Context) ([]domain.DailyRevenue, error) {
	return s.orders.DailyRevenue(ctx)
}

func (s *Service) buildOrder(cmd PlaceOrderCommand, catalog map[string]domain.Product) domain.Order {
	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		product := catalog[strings.TrimSpace(line.ProductID)]
		items = append(items, domain.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Image:      product.Image,
			PriceMinor: product.PriceMinor,
			Quantity:   line.Quantity,
		})
	}

	now := s.now()
	return domain.Order{
		ID:             s.newID(),
		UserID:         cmd.UserID,
		Items:          items,
		Shipping:       *cmd.Shipping,
		Payment:        domain.NewPaymentInfo(cmd.PaymentMethod, cmd.StripePaymentID),
		Totals:         domain.ComputeTotals(items, s.shippingPriceMinor),
		Status:         domain.OrderStatusProcessing,
		IdempotencyKey: cmd.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Service) appendStatusTimeline(ctx context.Context, tx domain.Tx, order domain.Order, previous domain.OrderStatus, reason string, at time.Time) error {
	events := []domain.TimelineEvent{{
		OrderID:  order.ID,
		Type:     domain.TimelineOrderStatusChanged,
		Reason:   fmt.Sprintf("%s -> %s", previous, order.Status),
		Occurred: at,
	}}
	if order.Status == domain.OrderStatusCancelled {
		events = append(events,
			domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelineOrderCancelled, Reason: reason, Occurred: at},
			domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelineStockRestored, Occurred: at},
		)
	}

	for _, event := range events {
		if err := tx.AppendTimeline(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) enqueueEvent(ctx context.Context, tx domain.Tx, eventType string, order domain.Order, previous domain.OrderStatus) error {
	msg, err := domain.NewOrderEventMessage(eventType, order, previous, s.now())
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	if _, err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return err
	}
	return nil
}

func (s *Service) recordRejection(logger *log.Entry, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		s.metrics.RecordOrderRejected(metrics.RejectReasonInsufficient)
		logger.WithError(err).Warn("order rejected")
	case errors.Is(err, domain.ErrProductNotFound):
		s.metrics.RecordOrderRejected(metrics.RejectReasonNotFound)
		logger.WithError(err).Warn("order rejected")
	default:
		s.metrics.RecordOrderRejected(metrics.RejectReasonInternal)
		logger.WithError(err).Error("order placement failed")
	}
}

func (s *Service) compareClientTotals(logger *log.Entry, client *domain.Totals, order domain.Order) {
	if client == nil || *client == order.Totals {
		return
	}
	s.metrics.RecordClientTotalMismatch()
	logger.WithFields(log.Fields{
		"order_id":           order.ID,
		"client_total_minor": client.TotalPriceMinor,
		"server_total_minor": order.TotalPriceMinor,
	}).Warn("client totals differ from server computation, server totals stored")
}

func validatePlaceOrder(cmd PlaceOrderCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return domain.ErrUserRequired
	}
	if len(cmd.Items) == 0 {
		return domain.ErrItemsRequired
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.ErrItemProductRequired
		}
		if item.Quantity < 1 {
			return domain.ErrItemQtyInvalid
		}
	}
	if err := cmd.Shipping.Validate(); err != nil {
		return err
	}
	if !cmd.PaymentMethod.Valid() {
		return domain.ErrPaymentMethodInvalid
	}
	return nil
}

type productDemand struct {
	productID string
	quantity  int64
}

// aggregateDemand суммирует количество по товару и сортирует по ID,
// чтобы блокировки строк всегда брались в одном порядке.
func aggregateDemand(items []LineItem) []productDemand {
	totals := make(map[string]int64, len(items))
	for _, item := range items {
		totals[strings.TrimSpace(item.ProductID)] += int64(item.Quantity)
	}

	demand := make([]productDemand, 0, len(totals))
	for id, qty := range totals {
		demand = append(demand, productDemand{productID: id, quantity: qty})
	}
	sort.Slice(demand, func(i, j int) bool { return demand[i].productID < demand[j].productID })
	return demand
}
