package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app@localhost:5432/results")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 12*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, "/", cfg.Portal.LoginPagePath)
	assert.Equal(t, []string{SourcePostgres, SourcePortal}, cfg.Credits.Sources)
	assert.False(t, cfg.HTTP.SecureCookies)
	assert.Equal(t, 10*time.Minute, cfg.HTTP.SessionMaxAge)
	assert.True(t, cfg.Features.IsEnabled(FeatureRemoteCredits, nil))
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "DATABASE_URL=postgres://file@localhost/results\nPORTAL_TIMEOUT=14s\nCREDIT_SOURCES=portal\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// godotenv sets process variables; make sure they are cleared afterwards.
	for _, k := range []string{"DATABASE_URL", "PORTAL_TIMEOUT", "CREDIT_SOURCES"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("PORTAL_TIMEOUT", "11s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file@localhost/results", cfg.Database.URL)
	assert.Equal(t, 11*time.Second, cfg.Portal.Timeout, "process env wins over the file")
	assert.Equal(t, []string{SourcePortal}, cfg.Credits.Sources)
}

func TestLoad_ProductionDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://app@db:5432/results")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.HTTP.SecureCookies)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	t.Setenv("PORTAL_BASE_URL", "not a url")
	t.Setenv("PORTAL_TIMEOUT", "30s")
	t.Setenv("CREDIT_SOURCES", "postgres,ldap,postgres")
	t.Setenv("ADMIN_API_KEY_HASH", "plaintext")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "PORTAL_BASE_URL")
	assert.Contains(t, msg, "PORTAL_TIMEOUT")
	assert.Contains(t, msg, `unknown source "ldap"`)
	assert.Contains(t, msg, `"postgres" listed twice`)
	assert.Contains(t, msg, "ADMIN_API_KEY_HASH")
	assert.Contains(t, msg, "LOG_FORMAT")
	assert.Contains(t, msg, "DATABASE_URL")
}

func TestValidate_AcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	t.Setenv("ADMIN_API_KEY_HASH", string(hash))
	t.Setenv("CREDIT_SOURCES", "portal")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, string(hash), cfg.HTTP.AdminKeyHash)
}

func TestGetEnvStringSlice(t *testing.T) {
	t.Setenv("LIST", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvStringSlice("LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvStringSlice("UNSET_LIST", []string{"x"}))
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURE FLAGS
// ══════════════════════════════════════════════════════════════════════════════

func TestFeatureFlags_EnvOverrides(t *testing.T) {
	t.Setenv("FEATURE_CREDITS_FALLBACK", "false")
	t.Setenv("FEATURE_LOGIN_INCLUDE_RECORD", "30")
	t.Setenv("FEATURE_CREDITS_REMOTE", "250")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureFallbackCredits, nil))
	assert.True(t, ff.IsEnabled(FeatureFallbackCredits, &FeatureContext{IsAdmin: true}))
	assert.True(t, ff.IsEnabled(FeatureRecordOnLogin, nil), "partial rollout without a key")
	assert.True(t, ff.IsEnabled(FeatureCatalogAdmin, nil))
	assert.False(t, ff.IsEnabled("unknown.flag", nil))

	byName := map[string]Feature{}
	for _, f := range ff.GetAllFeatures() {
		byName[f.Name] = f
	}
	assert.Equal(t, 30, byName[FeatureRecordOnLogin].RolloutPercent)
	assert.Equal(t, 100, byName[FeatureRemoteCredits].RolloutPercent, "out of range override is ignored")
}

func TestFeatureFlags_RolloutIsStable(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureRecordOnLogin, 50))

	ctx := &FeatureContext{Key: "session-abc"}
	first := ff.IsEnabled(FeatureRecordOnLogin, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureRecordOnLogin, ctx))
	}

	enabled := 0
	for i := 0; i < 1000; i++ {
		if ff.IsEnabled(FeatureRecordOnLogin, &FeatureContext{Key: fmt.Sprintf("key-%d", i)}) {
			enabled++
		}
	}
	assert.InDelta(t, 500, enabled, 150)
}

func TestFeatureFlags_Errors(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureRemoteCredits, 101), ErrInvalidRolloutPercent)

	require.NoError(t, ff.SetRolloutPercent(FeatureRemoteCredits, 0))
	assert.False(t, ff.IsEnabled(FeatureRemoteCredits, nil))
	require.NoError(t, ff.SetRolloutPercent(FeatureRemoteCredits, 100))
	assert.True(t, ff.IsEnabled(FeatureRemoteCredits, nil))

	all := ff.GetAllFeatures()
	require.Len(t, all, 4)
	assert.Equal(t, FeatureCatalogAdmin, all[0].Name)
}
