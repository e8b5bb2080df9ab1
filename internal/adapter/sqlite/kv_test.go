package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestKVRoundTripAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	kv, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, ok, err := kv.Get(ctx, "orders:r1"); ok || err != nil {
		t.Fatalf("empty get = %v, %v", ok, err)
	}

	if err := kv.Set(ctx, "orders:r1", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, "orders:r1", []byte(`[{"id":"o1"}]`)); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, "orders:r1:expiry", []byte("1700000000000")); err != nil {
		t.Fatal(err)
	}
	kv.Close()

	kv, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()

	v, ok, err := kv.Get(ctx, "orders:r1")
	if err != nil || !ok || string(v) != `[{"id":"o1"}]` {
		t.Fatalf("after reopen = %q %v %v", v, ok, err)
	}

	if err := kv.Delete(ctx, "orders:r1", "orders:r1:expiry"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := kv.Get(ctx, "orders:r1:expiry"); ok {
		t.Error("expiry still present after delete")
	}
	if err := kv.Delete(ctx); err != nil {
		t.Errorf("empty delete: %v", err)
	}
}
