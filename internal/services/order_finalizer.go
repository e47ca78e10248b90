package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	orderEventFinalized      = "order.finalized"
	orderEventNotifyFailed   = "order.notify.failed"
	orderEventNotifyMarkFail = "order.notify.mark_failed"

	orderIDPrefix   = "ord_"
	orderCounterID  = "orders"
	orderNumberBase = "SF"

	defaultNotifyTimeout = 10 * time.Second
	maxAddressLength     = 500
	maxNotesLength       = 1000
)

// OrderFinalizerDeps bundles collaborators required to construct the order finalizer.
type OrderFinalizerDeps struct {
	Carts      repositories.CartRepository
	Items      repositories.CartItemRepository
	Orders     repositories.OrderRepository
	Counters   repositories.CounterRepository
	Ledger     InventoryLedger
	Pricing    *PricingEngine
	Notifier   AdminNotifier
	UnitOfWork repositories.UnitOfWork

	Currency      string
	NotifyTimeout time.Duration
	// Sanitize cleans free-text delivery fields before they are stored.
	Sanitize func(string) string
	// Dispatch runs the post-commit notification. Defaults to a new goroutine.
	Dispatch func(fn func())

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Meter       metric.Meter
}

type orderFinalizer struct {
	carts      repositories.CartRepository
	items      repositories.CartItemRepository
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	ledger     InventoryLedger
	pricing    *PricingEngine
	notifier   AdminNotifier
	unitOfWork repositories.UnitOfWork

	currency      string
	notifyTimeout time.Duration
	sanitize      func(string) string
	dispatch      func(func())

	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
	metrics serviceMetrics
}

// NewOrderFinalizer wires dependencies into a concrete OrderFinalizer implementation.
func NewOrderFinalizer(deps OrderFinalizerDeps) (OrderFinalizer, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("order finalizer: cart repository is required")
	case deps.Items == nil:
		return nil, errors.New("order finalizer: cart item repository is required")
	case deps.Orders == nil:
		return nil, errors.New("order finalizer: order repository is required")
	case deps.Counters == nil:
		return nil, errors.New("order finalizer: counter repository is required")
	case deps.Ledger == nil:
		return nil, errors.New("order finalizer: inventory ledger is required")
	case deps.Pricing == nil:
		return nil, errors.New("order finalizer: pricing engine is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	timeout := deps.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}

	sanitize := deps.Sanitize
	if sanitize == nil {
		sanitize = func(v string) string { return v }
	}

	dispatch := deps.Dispatch
	if dispatch == nil {
		dispatch = func(fn func()) { go fn() }
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderFinalizer{
		carts:         deps.Carts,
		items:         deps.Items,
		orders:        deps.Orders,
		counters:      deps.Counters,
		ledger:        deps.Ledger,
		pricing:       deps.Pricing,
		notifier:      deps.Notifier,
		unitOfWork:    unit,
		currency:      strings.ToUpper(strings.TrimSpace(deps.Currency)),
		notifyTimeout: timeout,
		sanitize:      sanitize,
		dispatch:      dispatch,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		logger:  logger,
		metrics: newServiceMetrics(deps.Meter),
	}, nil
}

func (f *orderFinalizer) FinalizeCart(ctx context.Context, cmd FinalizeCartCommand) (Order, error) {
	ownerID := strings.TrimSpace(cmd.OwnerID)
	cartID := strings.TrimSpace(cmd.CartID)
	if ownerID == "" {
		return Order{}, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if cartID == "" {
		return Order{}, fmt.Errorf("%w: cart id is required", ErrValidation)
	}
	var (
		order   Order
		created bool
	)
	err := f.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		created = false

		existing, found, err := f.existingOrder(txCtx, ownerID, cartID)
		if err != nil {
			return err
		}
		if found {
			order = existing
			return nil
		}

		// Delivery is checked only for carts that still need an order.
		delivery, err := f.normaliseDelivery(cmd.Delivery)
		if err != nil {
			return err
		}

		cart, err := f.carts.Get(txCtx, cartID)
		if err != nil {
			return mapRepositoryError("get cart", err)
		}
		if cart.OwnerID != ownerID {
			return fmt.Errorf("%w: cart %s", ErrNotFound, cartID)
		}
		if !cart.IsOpen() {
			return fmt.Errorf("%w: %s", ErrCartClosed, cartID)
		}

		items, err := f.items.List(txCtx, cartID)
		if err != nil {
			return mapRepositoryError("list cart items", err)
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrValidation)
		}

		stock := make([]StockLine, 0, len(items))
		for _, item := range items {
			stock = append(stock, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		// Live prices and stock from inside the transaction; nothing cached is trusted here.
		products, err := f.ledger.Check(txCtx, stock)
		if err != nil {
			return err
		}

		now := f.clock()
		number, err := f.nextOrderNumber(txCtx, now)
		if err != nil {
			return err
		}
		if err := f.ledger.Decrement(txCtx, stock); err != nil {
			return err
		}

		lines, totals := f.priceLines(items, products)
		order = Order{
			ID:        orderIDPrefix + f.newID(),
			CartID:    cartID,
			OwnerID:   ownerID,
			Number:    number,
			Status:    domain.OrderStatusPending,
			Delivery:  delivery,
			Lines:     lines,
			Totals:    totals,
			Currency:  f.currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := f.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError("insert order", err)
		}
		if err := f.carts.Close(txCtx, cartID, now); err != nil {
			return mapRepositoryError("close cart", err)
		}
		created = true
		return nil
	})
	if err != nil {
		err = classify("finalize cart", err)
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrCartClosed) {
			// A concurrent finalize may have won; its order satisfies this call.
			if existing, found, rerr := f.existingOrder(ctx, ownerID, cartID); rerr == nil && found {
				f.metrics.addFinalizeOutcome(ctx, "existing")
				return existing, nil
			}
		}
		f.metrics.addFinalizeOutcome(ctx, finalizeOutcome(err))
		return Order{}, err
	}

	if !created {
		f.metrics.addFinalizeOutcome(ctx, "existing")
		return order, nil
	}

	f.metrics.addFinalizeOutcome(ctx, "created")
	f.logger(ctx, orderEventFinalized, map[string]any{
		"orderId": order.ID,
		"number":  order.Number,
		"cartId":  cartID,
		"total":   order.Totals.Total,
	})
	f.notifyAdmin(ctx, order)
	return order, nil
}

func (f *orderFinalizer) existingOrder(ctx context.Context, ownerID, cartID string) (Order, bool, error) {
	order, err := f.orders.FindByCart(ctx, cartID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Order{}, false, nil
		}
		return Order{}, false, mapRepositoryError("find order by cart", err)
	}
	if order.OwnerID != ownerID {
		return Order{}, false, fmt.Errorf("%w: cart %s", ErrNotFound, cartID)
	}
	return order, true, nil
}

// nextOrderNumber draws from a transactional sequence, so numbers never coincide across carts.
func (f *orderFinalizer) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := f.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		return "", mapRepositoryError("next order number", err)
	}
	return fmt.Sprintf("%s-%04d-%06d", orderNumberBase, now.Year(), seq), nil
}

func (f *orderFinalizer) priceLines(items []CartItem, products map[string]Product) ([]OrderLine, OrderTotals) {
	lines := make([]OrderLine, 0, len(items))
	priced := make([]PricedItem, 0, len(items))
	for _, item := range items {
		product := products[item.ProductID]
		p := PricedItem{UnitPrice: product.Price, Quantity: item.Quantity}
		lines = append(lines, OrderLine{
			ProductID:   item.ProductID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    item.Quantity,
			LineTotal:   f.pricing.LineSubtotal(p),
		})
		priced = append(priced, p)
	}
	return lines, f.pricing.Totals(priced)
}

func (f *orderFinalizer) normaliseDelivery(info DeliveryInfo) (DeliveryInfo, error) {
	address := strings.TrimSpace(f.sanitize(info.Address))
	notes := strings.TrimSpace(f.sanitize(info.Notes))
	if address == "" {
		return DeliveryInfo{}, fmt.Errorf("%w: delivery address is required", ErrValidation)
	}
	if utf8.RuneCountInString(address) > maxAddressLength {
		return DeliveryInfo{}, fmt.Errorf("%w: delivery address exceeds %d characters", ErrValidation, maxAddressLength)
	}
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return DeliveryInfo{}, fmt.Errorf("%w: notes exceed %d characters", ErrValidation, maxNotesLength)
	}
	return DeliveryInfo{Address: address, Notes: notes}, nil
}

// notifyAdmin runs detached from the request. Its failure never reaches the caller.
func (f *orderFinalizer) notifyAdmin(ctx context.Context, order Order) {
	if f.notifier == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	notification := OrderNotification{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		OwnerID:     order.OwnerID,
		Lines:       order.Lines,
		Totals:      order.Totals,
		Currency:    order.Currency,
		Delivery:    order.Delivery,
		RequestedAt: order.CreatedAt,
	}

	f.dispatch(func() {
		ctx, cancel := context.WithTimeout(detached, f.notifyTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				f.metrics.addNotifyFailure(ctx)
				f.logger(ctx, orderEventNotifyFailed, map[string]any{"orderId": order.ID, "panic": fmt.Sprint(r)})
			}
		}()

		if err := f.notifier.NotifyAdmin(ctx, notification); err != nil {
			f.metrics.addNotifyFailure(ctx)
			f.logger(ctx, orderEventNotifyFailed, map[string]any{"orderId": order.ID, "error": err.Error()})
			return
		}
		if err := f.orders.MarkAdminNotified(ctx, order.ID, f.clock()); err != nil {
			f.logger(ctx, orderEventNotifyMarkFail, map[string]any{"orderId": order.ID, "error": err.Error()})
		}
	})
}

func finalizeOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCartClosed):
		return "cart_closed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
