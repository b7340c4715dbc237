package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/lakafior/aio-abs-providers/internal/testutil"
	"github.com/spf13/viper"
)

type TestData struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func setupTestCache(t *testing.T) (*CacheDB, string) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	// Register test_cache as a valid table name for tests
	ValidCacheTableNames["test_cache"] = true
	t.Cleanup(func() {
		delete(ValidCacheTableNames, "test_cache")
	})

	env := testutil.NewTestEnv(t)
	dbPath := filepath.Join(env.RootDir(), "test_cache.db")

	cache, err := NewCacheDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create cache database: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	testSchema := `
		CREATE TABLE IF NOT EXISTS test_cache (
			cache_key TEXT PRIMARY KEY NOT NULL,
			data TEXT NOT NULL,
			cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	if err := cache.CreateTable(testSchema); err != nil {
		t.Fatalf("Failed to create test table: %v", err)
	}

	viper.Set("cache.ttl", "1h")

	return cache, dbPath
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestCache(t)

	data := TestData{ID: 42, Name: "hitchhiker"}
	jsonData, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal test data: %v", err)
	}

	if err := cache.Set("test_cache", "key1", string(jsonData)); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	got, fromCache, err := cache.Get("test_cache", "key1", time.Hour)
	if err != nil {
		t.Fatalf("Failed to get cache: %v", err)
	}
	if !fromCache {
		t.Fatal("Expected cache hit, got miss")
	}

	var result TestData
	if err := json.Unmarshal([]byte(got), &result); err != nil {
		t.Fatalf("Failed to unmarshal cached data: %v", err)
	}
	if result != data {
		t.Fatalf("Cached data = %+v, want %+v", result, data)
	}
}

func TestGetMissingKey(t *testing.T) {
	cache, _ := setupTestCache(t)

	_, fromCache, err := cache.Get("test_cache", "nonexistent", time.Hour)
	if err != nil {
		t.Fatalf("Get returned error for missing key: %v", err)
	}
	if fromCache {
		t.Fatal("Expected cache miss for missing key")
	}
}

func TestGetExpiredEntry(t *testing.T) {
	cache, _ := setupTestCache(t)

	if err := cache.Set("test_cache", "stale", `{"id":1,"name":"old"}`); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	// Backdate the entry past the TTL
	backdated := time.Now().UTC().Add(-2 * time.Hour)
	if err := cache.exec("UPDATE test_cache SET cached_at = ? WHERE cache_key = ?", backdated, "stale"); err != nil {
		t.Fatalf("Failed to backdate cache entry: %v", err)
	}

	_, fromCache, err := cache.Get("test_cache", "stale", time.Hour)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fromCache {
		t.Fatal("Expected cache miss for expired entry")
	}
}

func TestSetOverwritesExisting(t *testing.T) {
	cache, _ := setupTestCache(t)

	if err := cache.Set("test_cache", "key1", `{"id":1,"name":"first"}`); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}
	if err := cache.Set("test_cache", "key1", `{"id":2,"name":"second"}`); err != nil {
		t.Fatalf("Failed to overwrite cache: %v", err)
	}

	got, fromCache, err := cache.Get("test_cache", "key1", time.Hour)
	if err != nil || !fromCache {
		t.Fatalf("Get failed: fromCache=%v err=%v", fromCache, err)
	}

	var result TestData
	if err := json.Unmarshal([]byte(got), &result); err != nil {
		t.Fatalf("Failed to unmarshal cached data: %v", err)
	}
	if result.Name != "second" {
		t.Fatalf("Name = %q, want %q", result.Name, "second")
	}
}

func TestInvalidTableName(t *testing.T) {
	cache, _ := setupTestCache(t)

	if err := cache.Set("bogus_cache", "key", "{}"); err == nil {
		t.Fatal("Set accepted an invalid table name")
	}
	if _, _, err := cache.Get("bogus_cache; DROP TABLE test_cache", "key", time.Hour); err == nil {
		t.Fatal("Get accepted an invalid table name")
	}
}

func TestInvalidateSource(t *testing.T) {
	cache, _ := setupTestCache(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := cache.Set("test_cache", key, "{}"); err != nil {
			t.Fatalf("Failed to set cache: %v", err)
		}
	}

	deleted, err := cache.InvalidateSource("test_cache")
	if err != nil {
		t.Fatalf("InvalidateSource failed: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("InvalidateSource deleted %d rows, want 3", deleted)
	}

	_, fromCache, err := cache.Get("test_cache", "a", time.Hour)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fromCache {
		t.Fatal("Expected cache miss after invalidation")
	}
}

func TestClearExpired(t *testing.T) {
	cache, _ := setupTestCache(t)

	if err := cache.Set("test_cache", "fresh", "{}"); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}
	if err := cache.Set("test_cache", "stale", "{}"); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	backdated := time.Now().UTC().Add(-2 * time.Hour)
	if err := cache.exec("UPDATE test_cache SET cached_at = ? WHERE cache_key = ?", backdated, "stale"); err != nil {
		t.Fatalf("Failed to backdate cache entry: %v", err)
	}

	if err := cache.ClearExpired("test_cache", time.Hour); err != nil {
		t.Fatalf("ClearExpired failed: %v", err)
	}

	_, fresh, _ := cache.Get("test_cache", "fresh", time.Hour)
	if !fresh {
		t.Fatal("ClearExpired removed a fresh entry")
	}

	var count int
	row := cache.queryRow("SELECT COUNT(*) FROM test_cache")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("Row count = %d, want 1", count)
	}
}

func TestGetOrFetchWithTTLNegativeCaching(t *testing.T) {
	_, dbPath := setupTestCache(t)

	// Point the global cache at the test database
	if err := ResetGlobalCache(); err != nil {
		t.Fatalf("Failed to reset global cache: %v", err)
	}
	viper.Set("cache.dbfile", dbPath)
	t.Cleanup(func() {
		if err := ResetGlobalCache(); err != nil {
			t.Fatalf("Failed to reset global cache: %v", err)
		}
	})

	type lookupResult struct {
		Name     string `json:"name"`
		NotFound bool   `json:"not_found"`
	}

	fetchCalls := 0
	fetch := func() (lookupResult, error) {
		fetchCalls++
		return lookupResult{NotFound: true}, nil
	}
	selector := SelectNegativeCacheTTL(func(r lookupResult) bool { return r.NotFound })

	result, fromCache, err := GetOrFetchWithTTL("openlibrary_cache", "missing-key", fetch, selector)
	if err != nil {
		t.Fatalf("GetOrFetchWithTTL failed: %v", err)
	}
	if fromCache {
		t.Fatal("First call should not be a cache hit")
	}
	if !result.NotFound {
		t.Fatal("Expected NotFound result")
	}

	// Second call should come from cache without fetching
	_, fromCache, err = GetOrFetchWithTTL("openlibrary_cache", "missing-key", fetch, selector)
	if err != nil {
		t.Fatalf("GetOrFetchWithTTL failed: %v", err)
	}
	if !fromCache {
		t.Fatal("Second call should be a cache hit")
	}
	if fetchCalls != 1 {
		t.Fatalf("fetchFunc called %d times, want 1", fetchCalls)
	}
}

func TestGetOrFetchNegativeEntryExpiresEarly(t *testing.T) {
	_, dbPath := setupTestCache(t)

	if err := ResetGlobalCache(); err != nil {
		t.Fatalf("Failed to reset global cache: %v", err)
	}
	viper.Set("cache.dbfile", dbPath)
	viper.Set("cache.ttl", "720h")
	t.Cleanup(func() {
		if err := ResetGlobalCache(); err != nil {
			t.Fatalf("Failed to reset global cache: %v", err)
		}
	})

	type lookupResult struct {
		NotFound bool `json:"not_found"`
	}

	fetchCalls := 0
	fetch := func() (lookupResult, error) {
		fetchCalls++
		return lookupResult{NotFound: true}, nil
	}
	selector := SelectNegativeCacheTTL(func(r lookupResult) bool { return r.NotFound })

	if _, _, err := GetOrFetchWithTTL("openlibrary_cache", "gone", fetch, selector); err != nil {
		t.Fatalf("GetOrFetchWithTTL failed: %v", err)
	}

	// Age the entry past the negative TTL but well within the default
	global, err := GetGlobalCache()
	if err != nil {
		t.Fatalf("Failed to get global cache: %v", err)
	}
	backdated := time.Now().UTC().Add(-(NegativeCacheTTL + time.Hour))
	if err := global.exec("UPDATE openlibrary_cache SET cached_at = ? WHERE cache_key = ?", backdated, "gone"); err != nil {
		t.Fatalf("Failed to backdate cache entry: %v", err)
	}

	_, fromCache, err := GetOrFetchWithTTL("openlibrary_cache", "gone", fetch, selector)
	if err != nil {
		t.Fatalf("GetOrFetchWithTTL failed: %v", err)
	}
	if fromCache {
		t.Fatal("Stale negative entry served from cache")
	}
	if fetchCalls != 2 {
		t.Fatalf("fetchFunc called %d times, want 2", fetchCalls)
	}
}

func TestSelectNegativeCacheTTL(t *testing.T) {
	selector := SelectNegativeCacheTTL(func(notFound bool) bool { return notFound })

	if got := selector(true); got != NegativeCacheTTL {
		t.Fatalf("TTL for not-found = %v, want %v", got, NegativeCacheTTL)
	}
	if got := selector(false); got != DefaultCacheTTL {
		t.Fatalf("TTL for found = %v, want %v", got, DefaultCacheTTL)
	}
}
