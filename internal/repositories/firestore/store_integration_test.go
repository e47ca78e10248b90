//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pfirestore.Settings{ProjectID: "storefront-test", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	store, err := NewStore(provider)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStoreIntegration(t *testing.T) {
	store := newEmulatorStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.products.Put(ctx, domain.Product{ID: "p-1", Name: "Lamp", Price: 1200, Stock: 2, Status: domain.ProductStatusActive, UpdatedAt: now}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	cart := domain.Cart{ID: "cart-1", OwnerID: "user-1", CreatedAt: now, UpdatedAt: now}
	if err := store.Carts().InsertOpen(ctx, cart); err != nil {
		t.Fatalf("insert open: %v", err)
	}
	second := domain.Cart{ID: "cart-2", OwnerID: "user-1", CreatedAt: now, UpdatedAt: now}
	if err := store.Carts().InsertOpen(ctx, second); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict for second open cart, got %v", err)
	}

	item := domain.CartItem{ID: "item-1", CartID: cart.ID, ProductID: "p-1", Quantity: 2, AddedAt: now, UpdatedAt: now}
	if err := store.CartItems().Insert(ctx, item); err != nil {
		t.Fatalf("insert item: %v", err)
	}
	item.ID = "item-2"
	if err := store.CartItems().Insert(ctx, item); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict for duplicate product line, got %v", err)
	}

	// Same read-then-write order as finalize: every read precedes the first write.
	err := store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := store.Orders().FindByCart(ctx, cart.ID); !repositories.IsNotFound(err) {
			return fmt.Errorf("expected no order yet: %w", err)
		}
		if _, err := store.Carts().Get(ctx, cart.ID); err != nil {
			return err
		}
		products, err := store.Products().GetMany(ctx, []string{"p-1"})
		if err != nil {
			return err
		}
		seq, err := store.Counters().Next(ctx, "orders", 1)
		if err != nil {
			return err
		}
		product := products["p-1"]
		product.Stock = 0
		product.Status = domain.ProductStatusSoldOut
		if err := store.Products().SaveStock(ctx, []domain.Product{product}); err != nil {
			return err
		}
		order := domain.Order{
			ID: "ord-1", CartID: cart.ID, OwnerID: cart.OwnerID,
			Number: fmt.Sprintf("SF-%04d-%06d", now.Year(), seq),
			Status: domain.OrderStatusPending, CreatedAt: now, UpdatedAt: now,
		}
		if err := store.Orders().Insert(ctx, order); err != nil {
			return err
		}
		return store.Carts().Close(ctx, cart.ID, now)
	})
	if err != nil {
		t.Fatalf("finalize sequence: %v", err)
	}

	closed, err := store.Carts().Get(ctx, cart.ID)
	if err != nil || closed.IsOpen() {
		t.Fatalf("expected closed cart, got %+v %v", closed, err)
	}
	if err := store.Carts().InsertOpen(ctx, second); err != nil {
		t.Fatalf("expected guard released after close: %v", err)
	}
	order, err := store.Orders().Get(ctx, "ord-1")
	if err != nil || order.CartID != cart.ID {
		t.Fatalf("expected order by id, got %+v %v", order, err)
	}
	if !strings.HasSuffix(order.Number, "-000001") {
		t.Fatalf("expected first sequence number, got %s", order.Number)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
