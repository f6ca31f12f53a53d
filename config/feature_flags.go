package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with gradual rollout.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Callers are assigned based on a hash of their key
	RolloutPercent int
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	// Key buckets the caller for partial rollouts, e.g. a session key.
	Key     string
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// Uniform one-credit fallback for eligible B.Tech programmes
	FeatureFallbackCredits = "credits.fallback"

	// Ask the portal's credits endpoint for codes the catalog lacks
	FeatureRemoteCredits = "credits.remote"

	// Allow POST /login?include=record
	FeatureRecordOnLogin = "login.include_record"

	// Serve PUT /admin/credits
	FeatureCatalogAdmin = "admin.catalog"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureFallbackCredits] = &Feature{
		Name:           FeatureFallbackCredits,
		Description:    "Assume one credit per uncatalogued subject for eligible programmes",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRemoteCredits] = &Feature{
		Name:           FeatureRemoteCredits,
		Description:    "Query the portal credits endpoint after the local catalog",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRecordOnLogin] = &Feature{
		Name:           FeatureRecordOnLogin,
		Description:    "Build the processed record in the login response on request",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCatalogAdmin] = &Feature{
		Name:           FeatureCatalogAdmin,
		Description:    "Catalog upserts over HTTP",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_CREDITS_REMOTE=false
// Example: FEATURE_LOGIN_INCLUDE_RECORD=25 (25% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}

		percent := -1
		if b, err := strconv.ParseBool(val); err == nil {
			percent = 0
			if b {
				percent = 100
			}
		} else if p, err := strconv.Atoi(val); err == nil {
			percent = p
		}
		if percent >= 0 {
			// Out of range values keep the default.
			_ = ff.SetRolloutPercent(name, percent)
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "credits.remote" -> "FEATURE_CREDITS_REMOTE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context. Without a
// key, a partial rollout counts as enabled.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.Key != "" {
		return isInRollout(ctx.Key, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout uses consistent hashing so callers stay in their bucket.
func isInRollout(key, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(key))
	return int(h.Sum32()%100) < percent
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// GetAllFeatures returns a copy of all feature configurations, sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
