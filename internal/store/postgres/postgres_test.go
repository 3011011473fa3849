//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guestlens/guestlens/internal/config"
	"github.com/guestlens/guestlens/internal/face"
	"github.com/guestlens/guestlens/internal/store"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func testDetections() []face.Detection {
	return []face.Detection{
		{
			Index:     0,
			Embedding: []float32{0.1, 0.2, 0.3, 0.4},
			Box:       face.Box{X1: 10, Y1: 20, X2: 110, Y2: 140},
			Score:     0.98,
		},
		{
			Index:     1,
			Embedding: []float32{0.5, 0.6, 0.7, 0.8},
			Box:       face.Box{X1: 300, Y1: 40, X2: 380, Y2: 130},
			Score:     0.87,
		},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	cache := NewCache(pool)
	key := store.ExtractionKey{ContentHash: "abc123", Model: "dlib-resnet-v1", Fidelity: "precise"}

	if _, hit, err := cache.GetExtraction(ctx, key); err != nil || hit {
		t.Fatalf("empty cache: hit=%v err=%v", hit, err)
	}

	want := testDetections()
	if err := cache.PutExtraction(ctx, key, want); err != nil {
		t.Fatalf("PutExtraction: %v", err)
	}

	got, hit, err := cache.GetExtraction(ctx, key)
	if err != nil {
		t.Fatalf("GetExtraction: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit after put")
	}
	if len(got) != len(want) {
		t.Fatalf("detections = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Index != want[i].Index {
			t.Errorf("face %d index = %d, want %d", i, got[i].Index, want[i].Index)
		}
		if got[i].Box != want[i].Box {
			t.Errorf("face %d box = %+v, want %+v", i, got[i].Box, want[i].Box)
		}
		for j := range want[i].Embedding {
			if got[i].Embedding[j] != want[i].Embedding[j] {
				t.Errorf("face %d embedding[%d] = %f, want %f",
					i, j, got[i].Embedding[j], want[i].Embedding[j])
			}
		}
	}
}

func TestCacheZeroFacesIsAHit(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	cache := NewCache(pool)
	key := store.ExtractionKey{ContentHash: "nofaces", Model: "dlib-resnet-v1", Fidelity: "fast"}

	if err := cache.PutExtraction(ctx, key, nil); err != nil {
		t.Fatalf("PutExtraction: %v", err)
	}

	got, hit, err := cache.GetExtraction(ctx, key)
	if err != nil {
		t.Fatalf("GetExtraction: %v", err)
	}
	if !hit {
		t.Fatal("zero-face extraction must still be a hit")
	}
	if len(got) != 0 {
		t.Errorf("detections = %d, want 0", len(got))
	}
}

func TestCacheKeyIncludesFidelity(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	cache := NewCache(pool)
	fast := store.ExtractionKey{ContentHash: "same", Model: "m", Fidelity: "fast"}
	precise := store.ExtractionKey{ContentHash: "same", Model: "m", Fidelity: "precise"}

	if err := cache.PutExtraction(ctx, fast, testDetections()[:1]); err != nil {
		t.Fatalf("PutExtraction: %v", err)
	}

	if _, hit, err := cache.GetExtraction(ctx, precise); err != nil || hit {
		t.Errorf("precise lookup: hit=%v err=%v, want miss", hit, err)
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	cache := NewCache(pool)
	for i := range 3 {
		key := store.ExtractionKey{ContentHash: fmt.Sprintf("h%d", i), Model: "m", Fidelity: "fast"}
		if err := cache.PutExtraction(ctx, key, testDetections()); err != nil {
			t.Fatalf("PutExtraction: %v", err)
		}
	}

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Extractions != 3 || stats.Faces != 6 {
		t.Errorf("stats = %+v, want 3 extractions / 6 faces", stats)
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err = cache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats after clear: %v", err)
	}
	if stats.Extractions != 0 || stats.Faces != 0 {
		t.Errorf("stats after clear = %+v, want empty", stats)
	}
}

func TestPutExtractionReplacesEntry(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	cache := NewCache(pool)
	key := store.ExtractionKey{ContentHash: "replace", Model: "m", Fidelity: "fast"}

	if err := cache.PutExtraction(ctx, key, testDetections()); err != nil {
		t.Fatalf("PutExtraction: %v", err)
	}
	if err := cache.PutExtraction(ctx, key, testDetections()[:1]); err != nil {
		t.Fatalf("PutExtraction replace: %v", err)
	}

	got, hit, err := cache.GetExtraction(ctx, key)
	if err != nil || !hit {
		t.Fatalf("GetExtraction: hit=%v err=%v", hit, err)
	}
	if len(got) != 1 {
		t.Errorf("detections = %d, want 1 after replace", len(got))
	}
}
