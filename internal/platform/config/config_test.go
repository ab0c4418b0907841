package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, defaultRequestTimeout, cfg.Server.RequestTimeout)
	require.Empty(t, cfg.Firestore.ProjectID)
	require.Equal(t, "carts", cfg.Firestore.CartsCollection)
	require.Equal(t, "order-confirmed", cfg.PubSub.OrdersTopic)
	require.Empty(t, cfg.PizzaAPI.BaseURL)
	require.Equal(t, 10*time.Second, cfg.PizzaAPI.Timeout)
	require.Equal(t, "MX", cfg.Markets.Default)
	require.Len(t, cfg.Markets.Supported, 4)
	require.Equal(t, "JPY", cfg.Markets.Supported[3].Currency)
	require.Equal(t, 30*time.Second, cfg.Catalog.CacheTTL)
	require.Equal(t, 30*time.Minute, cfg.Menu.SessionTTL)
	require.Equal(t, ".secrets.local", cfg.Secrets.FallbackFile)
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_SERVER_PORT":          "9090",
		"STOREFRONT_SERVER_READ_TIMEOUT":  "20s",
		"STOREFRONT_FIRESTORE_PROJECT_ID": "omnipizza-prod",
		"STOREFRONT_PIZZA_API_BASE_URL":   "https://api.omnipizza.example/",
		"STOREFRONT_PIZZA_API_TOKEN":      "sm://pizza-api-token",
		"STOREFRONT_PIZZA_API_TIMEOUT":    "4",
		"STOREFRONT_MARKETS":              "us:usd:en-US, ch:chf:fr-CH",
		"STOREFRONT_DEFAULT_MARKET":       "ch",
		"STOREFRONT_CATALOG_CACHE_TTL":    "0s",
		"STOREFRONT_MENU_OPTIONS_FILE":    "/etc/storefront/options.yaml",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://pizza-api-token" {
			return " token-123 ", nil
		}
		return "", errors.New("unexpected ref " + ref)
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, 20*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, "omnipizza-prod", cfg.PubSub.ProjectID, "pub/sub project defaults to firestore project")
	require.Equal(t, "omnipizza-prod", cfg.Secrets.ProjectID)
	require.Equal(t, "https://api.omnipizza.example", cfg.PizzaAPI.BaseURL)
	require.Equal(t, "token-123", cfg.PizzaAPI.Token)
	require.Equal(t, 4*time.Second, cfg.PizzaAPI.Timeout)
	require.Equal(t, "CH", cfg.Markets.Default)
	require.Len(t, cfg.Markets.Supported, 2)
	require.Equal(t, "US", cfg.Markets.Supported[0].Country)
	require.Equal(t, "fr-CH", cfg.Markets.Supported[1].Language)
	require.Zero(t, cfg.Catalog.CacheTTL)
	require.Equal(t, "/etc/storefront/options.yaml", cfg.Menu.OptionsFile)
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{"STOREFRONT_PIZZA_API_TOKEN": "secret://pizza-api-token"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	require.ErrorAs(t, err, &secretErr)
	require.Equal(t, "secret://pizza-api-token", secretErr.Ref)
	require.ErrorIs(t, err, errSecretResolverNotConfigured)
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_DEFAULT_MARKET":     "BR",
		"STOREFRONT_PIZZA_API_BASE_URL": "ftp://nope",
		"STOREFRONT_MENU_SESSION_TTL":   "-1m",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.ElementsMatch(t, []string{"PizzaAPI.BaseURL", "Markets.Default", "Menu.SessionTTL"}, validation.Fields())
}

func TestLoadRejectsMalformedMarkets(t *testing.T) {
	env := map[string]string{"STOREFRONT_MARKETS": "MX-MXN"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Contains(t, validation.Fields(), "Markets.Supported")
}

func TestLoadReadsDotEnvWithLowerPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport STOREFRONT_SERVER_PORT=7070\nSTOREFRONT_PIZZA_API_BASE_URL=\"http://localhost:3000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"STOREFRONT_SERVER_PORT": "6060"}),
	)
	require.NoError(t, err)
	require.Equal(t, "6060", cfg.Server.Port)
	require.Equal(t, "http://localhost:3000", cfg.PizzaAPI.BaseURL)

	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv())
	require.NoError(t, err)
	require.Equal(t, "7070", values["STOREFRONT_SERVER_PORT"])
}
