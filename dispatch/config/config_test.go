package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	err := d.UnmarshalJSON([]byte(`"30s"`))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d.Duration)
}

func TestDuration_UnmarshalJSON_InvalidString(t *testing.T) {
	var d Duration
	err := d.UnmarshalJSON([]byte(`"not-a-duration"`))
	assert.Error(t, err)
}

func TestDuration_MarshalJSON_RoundTrips(t *testing.T) {
	d := Duration{Duration: 4 * time.Hour}
	b, err := d.MarshalJSON()
	require.NoError(t, err)

	var back Duration
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, d.Duration, back.Duration)
}

func TestLoadFromJSON5_RequiredFieldMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		site_url: "https://example.com",
	}`), 0o644))

	var cfg Common
	err := LoadFromJSON5(path, &cfg)
	assert.Error(t, err, "sql_connection is required and was omitted")
}

func TestLoadFromJSON5_OptionalFieldsMayBeZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		sql_connection: "postgresql://root@localhost:26257/fieldcore",
		site_url: "https://example.com",
		jwt_signing_key_path: "/etc/fieldcore/jwt.key",
		scoring: {
			drive_time_weight: 40,
			skill_match_weight: 20,
			workload_weight: 10,
			priority_weight: 10,
			emergency_multiplier: 1.5,
		},
		periodic_tasks: {
			geocoding_period: "5m",
			schedule_materializer_period: "1h",
			membership_renewal_period: "24h",
			review_request_period: "10m",
			escalation_advance_period: "1m",
		},
	}`), 0o644))

	var cfg Common
	err := LoadFromJSON5(path, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.ETASigningKeyPath)
	assert.Equal(t, 5*time.Minute, cfg.PeriodicTasks.GeocodingPeriod.Duration)
}

func TestLoadFromJSON5_MissingFile(t *testing.T) {
	var cfg Common
	err := LoadFromJSON5("/nonexistent/path.json5", &cfg)
	assert.Error(t, err)
}
