// Package config holds the command-line flags and JSON5-loaded settings
// shared by cmd/dispatch-server and cmd/dispatch-workers (cmd/sqlinit
// parses its own flags with the standard flag package). Adapted in place from
// golden/go/config/config.go: the flag-parsing and JSON5-loading machinery
// (Flagset, LoadFromJSON5, checkRequired) is kept verbatim in spirit, while
// the Gold/Gerrit-specific config structs (IngestionServerConfig,
// RepoFollowerConfig, CodeReviewSystem, FrontendServerConfig, ...) are
// replaced with the settings this dispatch service actually needs.
package config

import (
	"flag"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/flynn/json5"

	"go.fieldcore.build/go/skerr"
)

// ServerFlags are the command-line flags common to dispatch-server and
// dispatch-workers.
type ServerFlags struct {
	ConfigPath  string
	Hang        bool
	PromPort    string
	HealthzPort string
	Local       bool
}

// Flagset constructs a flag.FlagSet for the given app name.
func (s *ServerFlags) Flagset(appName string) *flag.FlagSet {
	fs := flag.NewFlagSet(appName, flag.ExitOnError)
	fs.StringVar(&s.ConfigPath, "config", "", "Path to the json5 file containing the instance configuration.")
	fs.BoolVar(&s.Hang, "hang", false, "Stop and do nothing after reading the flags. Good for debugging containers.")
	fs.StringVar(&s.PromPort, "prom_port", ":20000", "Metrics service address (e.g., ':20000').")
	fs.StringVar(&s.HealthzPort, "healthz", ":10000", "Port that handles the healthz endpoint.")
	fs.BoolVar(&s.Local, "local", false, "Running locally (not in production); turns off the HTTPS redirect and strict security-header checks.")
	return fs
}

// Duration allows a config field to be supplied as a human readable string
// such as "30s" or "4h" in the JSON5 file.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json5.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json5.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return skerr.Wrapf(err, "parsing duration %q", s)
	}
	d.Duration = parsed
	return nil
}

// ScoringWeights are candidate-scoring coefficients decoded from the
// instance config. dispatch/scoring does not read them: the Scorer uses its
// own fixed weights, so changing these values does not change dispatch.
type ScoringWeights struct {
	DriveTimeWeight     float64 `json:"drive_time_weight"`
	SkillMatchWeight    float64 `json:"skill_match_weight"`
	WorkloadWeight      float64 `json:"workload_weight"`
	PriorityWeight      float64 `json:"priority_weight"`
	EmergencyMultiplier float64 `json:"emergency_multiplier"`
}

// PeriodicTasksConfig configures the polling period of every background
// worker started by cmd/dispatch-workers (see golden/cmd/periodictasks.go
// for the pattern this is generalized from).
type PeriodicTasksConfig struct {
	GeocodingPeriod            Duration `json:"geocoding_period"`
	ScheduleMaterializerPeriod Duration `json:"schedule_materializer_period"`
	MembershipRenewalPeriod    Duration `json:"membership_renewal_period"`
	ReviewRequestPeriod        Duration `json:"review_request_period"`
	EscalationAdvancePeriod    Duration `json:"escalation_advance_period"`
}

// Common is the set of configuration values shared by every instance of this
// service; it is decoded from the json5 file named by ServerFlags.ConfigPath.
type Common struct {
	// SQLConnection is the pgx connection string for the CockroachDB/Postgres
	// cluster backing this instance, e.g. "postgresql://root@localhost:26257/fieldcore".
	SQLConnection string `json:"sql_connection"`

	// SiteURL is the externally visible URL this instance is hosted at.
	SiteURL string `json:"site_url"`

	// JWTSigningKeyPath is the filepath to the HMAC key used to sign and
	// verify bearer tokens (see dispatch/auth).
	JWTSigningKeyPath string `json:"jwt_signing_key_path"`

	// ETASigningKeyPath is the filepath to the securecookie hash/block key
	// pair (newline-separated) used to sign customer-facing ETA tracking
	// links.
	ETASigningKeyPath string `json:"eta_signing_key_path" optional:"true"`

	// RoutingProviderBaseURL is the base URL of the external drive-time
	// provider dispatch/routing calls. Empty means always use the
	// great-circle fallback.
	RoutingProviderBaseURL string `json:"routing_provider_base_url" optional:"true"`

	// RoutingProviderAPIKeyPath is the filepath to the API key for the
	// routing provider, if any.
	RoutingProviderAPIKeyPath string `json:"routing_provider_api_key_path" optional:"true"`

	// GeocodingProviderBaseURL is the base URL of the external geocoding
	// provider dispatch/workers' geocoding worker calls.
	GeocodingProviderBaseURL string `json:"geocoding_provider_base_url" optional:"true"`

	// Scoring holds candidate-scoring coefficients; see ScoringWeights (the
	// Scorer does not read them).
	Scoring ScoringWeights `json:"scoring"`

	// PeriodicTasks configures every background worker's poll period.
	PeriodicTasks PeriodicTasksConfig `json:"periodic_tasks"`

	// MaxAssignmentsPerDispatchRun is handed to dispatch/web's Server, but
	// the batch-dispatch handler does not apply it: a run assigns every job
	// it can, with no cap on the number of assignments.
	MaxAssignmentsPerDispatchRun int `json:"max_assignments_per_dispatch_run" optional:"true"`

	// Local indicates this instance is running outside of production:
	// dispatch/web turns off its HTTPS redirect and strict security-header
	// checks, and dispatch/db may log SQL queries.
	Local bool `json:"local" optional:"true"`
}

// LoadFromJSON5 reads the json5 file at path into dst, a pointer to a
// struct tagged with "json" tags, then verifies every required (non-bool,
// non-optional) field was actually set.
func LoadFromJSON5(path string, dst interface{}) error {
	rType := reflect.TypeOf(dst).Elem()
	if rType.Kind() != reflect.Struct {
		return skerr.Fmt("LoadFromJSON5 requires a pointer to a struct, got %T", dst)
	}
	f, err := os.Open(path)
	if err != nil {
		return skerr.Wrapf(err, "opening config at %s", path)
	}
	defer f.Close()
	if err := decodeJSON5(f, dst); err != nil {
		return skerr.Wrapf(err, "decoding config at %s", path)
	}
	rValue := reflect.Indirect(reflect.ValueOf(dst))
	return checkRequired(rValue)
}

func decodeJSON5(r io.Reader, dst interface{}) error {
	return json5.NewDecoder(r).Decode(dst)
}

// checkRequired returns an error if any non-struct, non-bool field of rValue
// has a zero value, unless it is tagged `optional:"true"`.
func checkRequired(rValue reflect.Value) error {
	rType := rValue.Type()
	for i := 0; i < rValue.NumField(); i++ {
		field := rType.Field(i)
		fieldValue := rValue.Field(i)
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(Duration{}) {
			if err := checkRequired(fieldValue); err != nil {
				return err
			}
			continue
		}
		if field.Type.Kind() == reflect.Bool {
			continue
		}
		isJSON := field.Tag.Get("json")
		if isJSON == "" {
			continue
		}
		if field.Tag.Get("optional") == "true" {
			continue
		}
		if fieldValue.IsZero() {
			return skerr.Fmt("required field %s is zero-valued", field.Name)
		}
	}
	return nil
}
