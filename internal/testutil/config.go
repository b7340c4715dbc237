package testutil

import (
	"testing"

	"github.com/lakafior/aio-abs-providers/internal/config"
	"github.com/spf13/viper"
)

// ResetConfig resets viper before the test runs and again when it completes,
// so tests cannot leak configuration into each other.
func ResetConfig(t *testing.T) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
}

// SetViperValue sets a viper key for the duration of the test.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	viper.Set(key, value)
	t.Cleanup(func() {
		viper.Set(key, nil)
	})
}

// LoadTestSettings resets viper, applies the application defaults plus any
// overrides, and returns the loaded settings snapshot.
func LoadTestSettings(t *testing.T, overrides map[string]any) config.Settings {
	t.Helper()

	ResetConfig(t)
	config.SetDefaults()
	for key, value := range overrides {
		viper.Set(key, value)
	}

	return config.Load()
}

// SetupTestCache points the global cache at a database inside the test
// environment and returns the directory holding it.
func SetupTestCache(t *testing.T, env *TestEnv) string {
	t.Helper()

	env.MkdirAll("cache")
	cacheDir := env.Path("cache")

	SetViperValue(t, "cache.dbfile", env.Path("cache", "test-cache.db"))
	SetViperValue(t, "cache.ttl", "24h")

	return cacheDir
}
