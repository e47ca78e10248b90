package secrets

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	resource := "projects/test/secrets/database_url/versions/latest"
	client.values[resource] = "postgres://remote"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("test"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for range 2 {
		got, err := fetcher.Resolve(ctx, "secret://database_url")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "postgres://remote" {
			t.Fatalf("expected remote value, got %s", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveHonoursVersionAndProject(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	resource := "projects/other/secrets/jwt_secret/versions/5"
	client.values[resource] = "version-5"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher error: %v", err)
	}

	got, err := fetcher.ResolveSecret(ctx, "secret://jwt_secret?version=5&project=other")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "version-5" {
		t.Fatalf("expected version-5, got %s", got)
	}
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.errors["projects/test/secrets/denied/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher error: %v", err)
	}

	cases := []struct {
		name string
		ref  string
	}{
		{name: "empty", ref: " "},
		{name: "wrong scheme", ref: "sm://database_url"},
		{name: "missing name", ref: "secret://"},
		{name: "not found", ref: "secret://missing"},
		{name: "permission denied", ref: "secret://denied"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fetcher.Resolve(ctx, tc.ref); err == nil {
				t.Fatalf("expected error for %q", tc.ref)
			}
		})
	}
}

func TestResolveRequiresProject(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithSecretManagerClient(newFakeSecretClient()))
	if err != nil {
		t.Fatalf("NewFetcher error: %v", err)
	}
	if _, err := fetcher.Resolve(context.Background(), "secret://database_url"); err == nil {
		t.Fatal("expected error without project")
	}
}

func TestNewFetcherReportsClientFailure(t *testing.T) {
	original := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (secretManagerClient, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() {
		secretManagerClientFactory = original
	})

	if _, err := NewFetcher(context.Background(), WithProject("test")); err == nil {
		t.Fatal("expected error when client cannot be created")
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++

	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error {
	return nil
}

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
