package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	cartEventCreated      = "cart.created"
	cartEventReconciled   = "cart.reconciled"
	cartEventConflict     = "cart.acquire.conflict"
	cartEventHintFailed   = "cart.hint.failed"
	cartEventHintDiscard  = "cart.hint.discarded"
	cartEventItemsChanged = "cart.items.changed"

	cartIDPrefix     = "cart_"
	cartItemIDPrefix = "item_"

	defaultAcquireAttempts = 3
	defaultAcquireBackoff  = 10 * time.Millisecond
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts      repositories.CartRepository
	Items      repositories.CartItemRepository
	Products   repositories.ProductRepository
	Catalog    ProductReader
	Pricing    *PricingEngine
	Hints      CartHintStore
	UnitOfWork repositories.UnitOfWork

	AcquireAttempts int
	AcquireBackoff  time.Duration
	Sleep           func(ctx context.Context, d time.Duration) error

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Meter       metric.Meter
}

type cartService struct {
	carts      repositories.CartRepository
	items      repositories.CartItemRepository
	products   repositories.ProductRepository
	catalog    ProductReader
	pricing    *PricingEngine
	hints      CartHintStore
	unitOfWork repositories.UnitOfWork

	attempts int
	backoff  time.Duration
	sleep    func(context.Context, time.Duration) error

	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
	metrics serviceMetrics
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Items == nil {
		return nil, errors.New("cart service: cart item repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}

	catalog := deps.Catalog
	if catalog == nil {
		catalog = deps.Products
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	attempts := deps.AcquireAttempts
	if attempts <= 0 {
		attempts = defaultAcquireAttempts
	}
	backoff := deps.AcquireBackoff
	if backoff <= 0 {
		backoff = defaultAcquireBackoff
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = gax.Sleep
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

	return &cartService{
		carts:      deps.Carts,
		items:      deps.Items,
		products:   deps.Products,
		catalog:    catalog,
		pricing:    deps.Pricing,
		hints:      deps.Hints,
		unitOfWork: unit,
		attempts:   attempts,
		backoff:    backoff,
		sleep:      sleep,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		logger:  logger,
		metrics: newServiceMetrics(deps.Meter),
	}, nil
}

func (s *cartService) AcquireOpenCart(ctx context.Context, ownerID string) (Cart, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Cart{}, fmt.Errorf("%w: owner id is required", ErrValidation)
	}

	if cart, ok := s.cartFromHint(ctx, ownerID); ok {
		return cart, nil
	}

	backoff := gax.Backoff{
		Initial:    s.backoff,
		Max:        s.backoff * 8,
		Multiplier: 2,
	}

	for attempt := 1; ; attempt++ {
		cart, found, err := s.lookupOpen(ctx, ownerID)
		if err != nil {
			return Cart{}, err
		}
		if found {
			s.rememberHint(ctx, cart)
			return cart, nil
		}

		now := s.clock()
		cart = Cart{
			ID:        cartIDPrefix + s.newID(),
			OwnerID:   ownerID,
			Status:    domain.CartStatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.carts.InsertOpen(ctx, cart)
		if err == nil {
			s.logger(ctx, cartEventCreated, map[string]any{"cartId": cart.ID, "ownerId": ownerID})
			s.rememberHint(ctx, cart)
			return cart, nil
		}
		if !repositories.IsConflict(err) {
			return Cart{}, mapRepositoryError("acquire open cart", err)
		}

		// Another caller won the insert; re-read after a short pause.
		s.metrics.addAcquireConflict(ctx)
		s.logger(ctx, cartEventConflict, map[string]any{"ownerId": ownerID, "attempt": attempt})
		if attempt >= s.attempts {
			return Cart{}, fmt.Errorf("%w: open cart for owner %s not resolved after %d attempts", ErrConflict, ownerID, attempt)
		}
		if err := s.sleep(ctx, backoff.Pause()); err != nil {
			return Cart{}, fmt.Errorf("%w: acquire open cart: %v", ErrTransient, err)
		}
	}
}

// lookupOpen returns the owner's canonical open cart, closing any duplicates it finds.
func (s *cartService) lookupOpen(ctx context.Context, ownerID string) (Cart, bool, error) {
	carts, err := s.carts.ListOpenByOwner(ctx, ownerID)
	if err != nil {
		return Cart{}, false, mapRepositoryError("lookup open cart", err)
	}
	switch len(carts) {
	case 0:
		return Cart{}, false, nil
	case 1:
		return carts[0], true, nil
	}

	if _, err := s.reconcile(ctx, ownerID, carts); err != nil {
		return Cart{}, false, err
	}
	return canonicalCart(carts), true, nil
}

func (s *cartService) ReconcileOwner(ctx context.Context, ownerID string) (ReconcileResult, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	carts, err := s.carts.ListOpenByOwner(ctx, ownerID)
	if err != nil {
		return ReconcileResult{}, mapRepositoryError("reconcile carts", err)
	}
	if len(carts) <= 1 {
		result := ReconcileResult{OwnerID: ownerID}
		if len(carts) == 1 {
			result.KeptID = carts[0].ID
		}
		return result, nil
	}
	return s.reconcile(ctx, ownerID, carts)
}

func (s *cartService) reconcile(ctx context.Context, ownerID string, carts []Cart) (ReconcileResult, error) {
	canonical := canonicalCart(carts)
	closedIDs := make([]string, 0, len(carts)-1)
	for _, cart := range carts {
		if cart.ID != canonical.ID {
			closedIDs = append(closedIDs, cart.ID)
		}
	}

	closed, err := s.carts.CloseDuplicates(ctx, ownerID, canonical.ID, s.clock())
	if err != nil {
		return ReconcileResult{}, mapRepositoryError("close duplicate carts", err)
	}

	s.metrics.addReconciled(ctx, closed)
	s.logger(ctx, cartEventReconciled, map[string]any{
		"ownerId": ownerID,
		"keptId":  canonical.ID,
		"closed":  closedIDs,
	})
	return ReconcileResult{OwnerID: ownerID, KeptID: canonical.ID, ClosedIDs: closedIDs}, nil
}

// canonicalCart picks the most recently created cart, breaking ties by the greater id.
func canonicalCart(carts []Cart) Cart {
	return slices.MaxFunc(carts, func(a, b Cart) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (s *cartService) cartFromHint(ctx context.Context, ownerID string) (Cart, bool) {
	if s.hints == nil {
		return Cart{}, false
	}
	cartID, ok, err := s.hints.Get(ctx, ownerID)
	if err != nil {
		s.logger(ctx, cartEventHintFailed, map[string]any{"ownerId": ownerID, "error": err.Error()})
		return Cart{}, false
	}
	if !ok || strings.TrimSpace(cartID) == "" {
		return Cart{}, false
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err == nil && cart.IsOpen() && cart.OwnerID == ownerID {
		return cart, true
	}
	if err != nil && !repositories.IsNotFound(err) {
		s.logger(ctx, cartEventHintFailed, map[string]any{"ownerId": ownerID, "cartId": cartID, "error": err.Error()})
		return Cart{}, false
	}

	s.logger(ctx, cartEventHintDiscard, map[string]any{"ownerId": ownerID, "cartId": cartID})
	if err := s.hints.Delete(ctx, ownerID); err != nil {
		s.logger(ctx, cartEventHintFailed, map[string]any{"ownerId": ownerID, "error": err.Error()})
	}
	return Cart{}, false
}

func (s *cartService) rememberHint(ctx context.Context, cart Cart) {
	if s.hints == nil {
		return
	}
	if err := s.hints.Set(ctx, cart.OwnerID, cart.ID); err != nil {
		s.logger(ctx, cartEventHintFailed, map[string]any{"ownerId": cart.OwnerID, "cartId": cart.ID, "error": err.Error()})
	}
}

func (s *cartService) GetCart(ctx context.Context, ownerID string) (CartView, error) {
	cart, err := s.AcquireOpenCart(ctx, ownerID)
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, cart)
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	cartID, err := s.resolveCartID(ctx, cmd.OwnerID, cmd.CartID)
	if err != nil {
		return CartView{}, err
	}

	var cart Cart
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		cart, err = s.loadOwnedOpenCart(txCtx, cmd.OwnerID, cartID)
		if err != nil {
			return err
		}
		product, err := s.loadProduct(txCtx, productID)
		if err != nil {
			return err
		}

		existing, err := s.items.FindByProduct(txCtx, cart.ID, productID)
		found := err == nil
		if err != nil && !repositories.IsNotFound(err) {
			return mapRepositoryError("find cart item", err)
		}

		quantity := cmd.Quantity
		if found {
			quantity += existing.Quantity
		}
		if err := requireStock(product, quantity); err != nil {
			return err
		}

		now := s.clock()
		if found {
			if err := s.items.UpdateQuantity(txCtx, cart.ID, existing.ID, quantity, now); err != nil {
				return mapRepositoryError("update cart item", err)
			}
		} else {
			item := CartItem{
				ID:        cartItemIDPrefix + s.newID(),
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  quantity,
				AddedAt:   now,
				UpdatedAt: now,
			}
			if err := s.items.Insert(txCtx, item); err != nil {
				return mapRepositoryError("insert cart item", err)
			}
		}
		return s.touch(txCtx, cart.ID, now)
	})
	if err != nil {
		return CartView{}, classify("add cart item", err)
	}

	s.logger(ctx, cartEventItemsChanged, map[string]any{"cartId": cart.ID, "productId": productID, "op": "add"})
	return s.reload(ctx, cart.ID)
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return CartView{}, fmt.Errorf("%w: item id is required", ErrValidation)
	}
	if cmd.Quantity < 0 {
		return CartView{}, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, RemoveCartItemCommand{OwnerID: cmd.OwnerID, CartID: cmd.CartID, ItemID: itemID})
	}

	cartID, err := s.resolveCartID(ctx, cmd.OwnerID, cmd.CartID)
	if err != nil {
		return CartView{}, err
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.loadOwnedOpenCart(txCtx, cmd.OwnerID, cartID)
		if err != nil {
			return err
		}
		item, err := s.items.Get(txCtx, cart.ID, itemID)
		if err != nil {
			return mapRepositoryError("get cart item", err)
		}
		product, err := s.loadProduct(txCtx, item.ProductID)
		if err != nil {
			return err
		}
		if err := requireStock(product, cmd.Quantity); err != nil {
			return err
		}

		now := s.clock()
		if err := s.items.UpdateQuantity(txCtx, cart.ID, item.ID, cmd.Quantity, now); err != nil {
			return mapRepositoryError("update cart item", err)
		}
		return s.touch(txCtx, cart.ID, now)
	})
	if err != nil {
		return CartView{}, classify("update cart item", err)
	}

	s.logger(ctx, cartEventItemsChanged, map[string]any{"cartId": cartID, "itemId": itemID, "op": "update"})
	return s.reload(ctx, cartID)
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return CartView{}, fmt.Errorf("%w: item id is required", ErrValidation)
	}

	cartID, err := s.resolveCartID(ctx, cmd.OwnerID, cmd.CartID)
	if err != nil {
		return CartView{}, err
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.loadOwnedOpenCart(txCtx, cmd.OwnerID, cartID)
		if err != nil {
			return err
		}
		if _, err := s.items.Get(txCtx, cart.ID, itemID); err != nil {
			return mapRepositoryError("get cart item", err)
		}
		if err := s.items.Delete(txCtx, cart.ID, itemID); err != nil {
			return mapRepositoryError("delete cart item", err)
		}
		return s.touch(txCtx, cart.ID, s.clock())
	})
	if err != nil {
		return CartView{}, classify("remove cart item", err)
	}

	s.logger(ctx, cartEventItemsChanged, map[string]any{"cartId": cartID, "itemId": itemID, "op": "remove"})
	return s.reload(ctx, cartID)
}

func (s *cartService) ClearCart(ctx context.Context, cmd ClearCartCommand) (CartView, error) {
	cartID, err := s.resolveCartID(ctx, cmd.OwnerID, cmd.CartID)
	if err != nil {
		return CartView{}, err
	}

	removed := 0
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.loadOwnedOpenCart(txCtx, cmd.OwnerID, cartID)
		if err != nil {
			return err
		}
		removed, err = s.items.DeleteAll(txCtx, cart.ID)
		if err != nil {
			return mapRepositoryError("clear cart", err)
		}
		return s.touch(txCtx, cart.ID, s.clock())
	})
	if err != nil {
		return CartView{}, classify("clear cart", err)
	}

	s.logger(ctx, cartEventItemsChanged, map[string]any{"cartId": cartID, "removed": removed, "op": "clear"})
	return s.reload(ctx, cartID)
}

// resolveCartID returns cartID when given, otherwise the owner's open cart.
func (s *cartService) resolveCartID(ctx context.Context, ownerID, cartID string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if trimmed := strings.TrimSpace(cartID); trimmed != "" {
		return trimmed, nil
	}
	cart, err := s.AcquireOpenCart(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return cart.ID, nil
}

func (s *cartService) loadOwnedOpenCart(ctx context.Context, ownerID, cartID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return Cart{}, mapRepositoryError("get cart", err)
	}
	if cart.OwnerID != strings.TrimSpace(ownerID) {
		return Cart{}, fmt.Errorf("%w: cart %s", ErrNotFound, cartID)
	}
	if !cart.IsOpen() {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartClosed, cartID)
	}
	return cart, nil
}

func (s *cartService) loadProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Product{}, fmt.Errorf("%w: product %s does not exist", ErrValidation, productID)
		}
		return Product{}, mapRepositoryError("get product", err)
	}
	return product, nil
}

func requireStock(product Product, quantity int) error {
	available := product.Stock
	if product.Status != domain.ProductStatusActive {
		available = 0
	}
	if quantity > available {
		return &InsufficientStockError{Shortages: []StockShortage{{
			ProductID: product.ID,
			Requested: quantity,
			Available: max(available, 0),
		}}}
	}
	return nil
}

func (s *cartService) touch(ctx context.Context, cartID string, at time.Time) error {
	if err := s.carts.Touch(ctx, cartID, at); err != nil {
		return mapRepositoryError("touch cart", err)
	}
	return nil
}

func (s *cartService) reload(ctx context.Context, cartID string) (CartView, error) {
	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return CartView{}, mapRepositoryError("get cart", err)
	}
	return s.view(ctx, cart)
}

// view joins the cart's items with live catalog prices.
func (s *cartService) view(ctx context.Context, cart Cart) (CartView, error) {
	items, err := s.items.List(ctx, cart.ID)
	if err != nil {
		return CartView{}, mapRepositoryError("list cart items", err)
	}
	cart.Items = items

	products, err := s.catalogProducts(ctx, items)
	if err != nil {
		return CartView{}, err
	}

	lines := make([]PricedLine, 0, len(items))
	priced := make([]PricedItem, 0, len(items))
	for _, item := range items {
		line := PricedLine{Item: item}
		if product, ok := products[item.ProductID]; ok {
			line.ProductName = product.Name
			line.UnitPrice = product.Price
			line.Available = product.Stock
			if product.Status != domain.ProductStatusActive {
				line.Available = 0
			}
		}
		line.LineTotal = s.pricing.LineSubtotal(PricedItem{UnitPrice: line.UnitPrice, Quantity: item.Quantity})
		lines = append(lines, line)
		priced = append(priced, PricedItem{UnitPrice: line.UnitPrice, Quantity: item.Quantity})
	}

	view := CartView{Cart: cart, Lines: lines}
	if len(items) > 0 {
		view.Totals = s.pricing.Totals(priced)
	}
	return view, nil
}

func (s *cartService) catalogProducts(ctx context.Context, items []CartItem) (map[string]Product, error) {
	if len(items) == 0 {
		return map[string]Product{}, nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.GetMany(ctx, ids)
	if err == nil {
		return products, nil
	}
	if !repositories.IsNotFound(err) {
		return nil, mapRepositoryError("load catalog", err)
	}

	// Some product vanished from the catalog; price the rest and leave it unpriced.
	products = make(map[string]Product, len(ids))
	for _, id := range ids {
		product, err := s.catalog.Get(ctx, id)
		if err != nil {
			if repositories.IsNotFound(err) {
				continue
			}
			return nil, mapRepositoryError("load catalog", err)
		}
		products[id] = product
	}
	return products, nil
}
