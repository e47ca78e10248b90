package di

import (
	"context"
	"strings"
	"testing"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	"github.com/hanko-field/storefront/internal/services"
)

func TestPlainTextSanitizer(t *testing.T) {
	sanitize := newPlainTextSanitizer()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ampersand and apostrophe", "Rua D'Ajuda 5 & 7, Maputo", "Rua D'Ajuda 5 & 7, Maputo"},
		{"quotes and less-than", `ring "twice" if < 5pm`, `ring "twice" if < 5pm`},
		{"japanese", "東京都中央区銀座1-2-3", "東京都中央区銀座1-2-3"},
		{"tags stripped", "<b>1-2-3</b> Ginza", "1-2-3 Ginza"},
		{"script dropped", "Ginza<script>alert(1)</script>", "Ginza"},
		{"encoded tags stripped", "&lt;i&gt;Ginza&lt;/i&gt;", "Ginza"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitize(tc.in); got != tc.want {
				t.Fatalf("sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewContainerStoresDeliveryTextUnescaped(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutProduct(domain.Product{ID: "tea", Name: "Sencha", Price: 1800, Stock: 5, Status: domain.ProductStatusActive})

	container, err := NewContainer(ctx, memoryConfig(), store, WithDispatch(func(fn func()) { fn() }))
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(ctx) })

	cart, err := container.Services.Cart.AcquireOpenCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("acquire cart: %v", err)
	}
	if _, err := container.Services.Cart.AddItem(ctx, services.AddCartItemCommand{OwnerID: "user-1", CartID: cart.ID, ProductID: "tea", Quantity: 1}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	// Exactly at the limit; escaping would push it over.
	notes := strings.Repeat("&", 1000)
	order, err := container.Services.Finalizer.FinalizeCart(ctx, services.FinalizeCartCommand{
		OwnerID:  "user-1",
		CartID:   cart.ID,
		Delivery: services.DeliveryInfo{Address: "Rua D'Ajuda 5 & 7, Maputo", Notes: notes},
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if order.Delivery.Address != "Rua D'Ajuda 5 & 7, Maputo" {
		t.Fatalf("unexpected stored address %q", order.Delivery.Address)
	}
	if order.Delivery.Notes != notes {
		t.Fatalf("expected notes stored unescaped, got %d bytes", len(order.Delivery.Notes))
	}
}
