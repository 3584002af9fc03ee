// Package schema defines the CockroachDB schema for this service and the
// per-table Go structs cmd/sqlinit uses to schedule backups. Grounded on
// golden/cmd/sqlinit/sqlinit.go's pattern: a raw-SQL Schema string executed
// verbatim at init time, and a Tables struct whose fields are annotated with
// `sql_backup:"<cadence>"` tags that sqlinit's reflection-driven schedule
// builder walks to generate CREATE SCHEDULE statements. Every entity named
// in spec.md's data model, plus this repo's SPEC_FULL.md supplements
// (RefrigerantLog, MembershipAgreement, BillingTrigger, ReviewRequest,
// AuditLog), has a row struct and a table here.
package schema

import "time"

// Tables lists every table in this service's database, each field backed by
// the row struct of the same name pluralized. sql_backup controls how often
// cmd/sqlinit schedules an automated full backup for that table; "none"
// opts a table out (used for tables that are cheap to rebuild, like
// materialized review requests).
type Tables struct {
	Companies              []Company              `sql_backup:"daily"`
	Users                  []User                 `sql_backup:"daily"`
	Employees              []Employee             `sql_backup:"daily"`
	Customers              []Customer             `sql_backup:"daily"`
	CustomerLocations      []CustomerLocation     `sql_backup:"daily"`
	Equipment              []EquipmentRow         `sql_backup:"daily"`
	Jobs                   []Job                  `sql_backup:"daily"`
	JobTimeTrackings       []JobTimeTracking      `sql_backup:"daily"`
	JobCompletions         []JobCompletion        `sql_backup:"daily"`
	JobAssignmentLogs      []JobAssignmentLog     `sql_backup:"weekly"`
	JobReassignmentEvents  []JobReassignmentEvent `sql_backup:"weekly"`
	RefrigerantLogs        []RefrigerantLog       `sql_backup:"daily"`
	EscalationPolicies     []EscalationPolicy     `sql_backup:"daily"`
	EscalationEvents       []EscalationEvent      `sql_backup:"weekly"`
	AfterHoursRules        []AfterHoursRule       `sql_backup:"daily"`
	RecurringJobSchedules  []RecurringJobSchedule `sql_backup:"daily"`
	MembershipAgreements   []MembershipAgreement  `sql_backup:"daily"`
	BillingTriggers        []BillingTrigger       `sql_backup:"weekly"`
	ReviewRequests         []ReviewRequest        `sql_backup:"none"`
	AuditLogs              []AuditLog             `sql_backup:"monthly"`
}

// Company is the tenant root. Never hard-deleted.
type Company struct {
	CompanyID string    `sql:"company_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	Name      string    `sql:"name STRING NOT NULL"`
	Timezone  string    `sql:"timezone STRING NOT NULL"`
	Industry  string    `sql:"industry STRING NOT NULL DEFAULT 'hvac'"`
	CreatedAt time.Time `sql:"created_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
}

// User role values; unknown values at decode time are a ValidationError,
// not silently passed through (spec.md §9).
const (
	RolePlatform    = "platform"
	RoleAdmin       = "admin"
	RoleTechnician  = "technician"
	RoleDispatcher  = "dispatcher"
)

type User struct {
	UserID       string     `sql:"user_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID    *string    `sql:"company_id UUID REFERENCES companies (company_id)"`
	Email        string     `sql:"email STRING NOT NULL UNIQUE"`
	PasswordHash string     `sql:"password_hash STRING NOT NULL"`
	Role         string     `sql:"role STRING NOT NULL"`
	CreatedAt    time.Time  `sql:"created_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
	DeletedAt    *time.Time `sql:"deleted_at TIMESTAMPTZ"`
}

// Employee is a dispatchable worker. SkillLevel maps a skill name to an
// integer proficiency; Skills is its key set, stored redundantly for cheap
// array-contains filtering in eligibility queries.
type Employee struct {
	EmployeeID        string     `sql:"employee_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID         string     `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	UserID            *string    `sql:"user_id UUID REFERENCES users (user_id)"`
	Name              string     `sql:"name STRING NOT NULL"`
	Skills            []string   `sql:"skills STRING[] NOT NULL DEFAULT '{}'"`
	SkillLevel        []byte     `sql:"skill_level JSONB NOT NULL DEFAULT '{}'"`
	IsActive          bool       `sql:"is_active BOOL NOT NULL DEFAULT true"`
	IsAvailable       bool       `sql:"is_available BOOL NOT NULL DEFAULT true"`
	CurrentJobID      *string    `sql:"current_job_id UUID REFERENCES jobs (job_id)"`
	CurrentJobsCount  int        `sql:"current_jobs_count INT8 NOT NULL DEFAULT 0"`
	MaxConcurrentJobs int        `sql:"max_concurrent_jobs INT8 NOT NULL DEFAULT 1"`
	Rating            *float64   `sql:"rating FLOAT"`
	HomeAddress       string     `sql:"home_address STRING NOT NULL"`
	CurrentLat        *float64   `sql:"current_lat FLOAT"`
	CurrentLng        *float64   `sql:"current_lng FLOAT"`
	LocationUpdatedAt *time.Time `sql:"location_updated_at TIMESTAMPTZ"`
	LastJobCompletedAt *time.Time `sql:"last_job_completed_at TIMESTAMPTZ"`
}

// geocoding_status values, shared by every geocodable table (customers,
// jobs, customer_locations).
const (
	GeocodingPending  = "pending"
	GeocodingComplete = "complete"
	GeocodingFailed   = "failed"
)

type Customer struct {
	CustomerID      string    `sql:"customer_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID       string    `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	Name            string    `sql:"name STRING NOT NULL"`
	Phone           string    `sql:"phone STRING NOT NULL"`
	Email           string    `sql:"email STRING"`
	Address         string    `sql:"address STRING NOT NULL"`
	City            string    `sql:"city STRING"`
	State           string    `sql:"state STRING"`
	Zip             string    `sql:"zip STRING"`
	Latitude        *float64  `sql:"latitude FLOAT"`
	Longitude       *float64  `sql:"longitude FLOAT"`
	GeocodingStatus string    `sql:"geocoding_status STRING NOT NULL DEFAULT 'pending'"`
	GeocodingRetries int      `sql:"geocoding_retries INT8 NOT NULL DEFAULT 0"`
	NoShowCount     int       `sql:"no_show_count INT8 NOT NULL DEFAULT 0"`
	IsActive        bool      `sql:"is_active BOOL NOT NULL DEFAULT true"`
	CreatedAt       time.Time `sql:"created_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
}

// CustomerLocation holds additional service addresses for one Customer.
// The schema does not limit how many rows per customer have
// IsPrimary=true, and no code in this repository sets IsPrimary or demotes
// an existing primary location.
type CustomerLocation struct {
	LocationID      string    `sql:"location_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID       string    `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	CustomerID      string    `sql:"customer_id UUID NOT NULL REFERENCES customers (customer_id)"`
	Address         string    `sql:"address STRING NOT NULL"`
	Latitude        *float64  `sql:"latitude FLOAT"`
	Longitude       *float64  `sql:"longitude FLOAT"`
	GeocodingStatus string    `sql:"geocoding_status STRING NOT NULL DEFAULT 'pending'"`
	GeocodingRetries int      `sql:"geocoding_retries INT8 NOT NULL DEFAULT 0"`
	IsPrimary       bool      `sql:"is_primary BOOL NOT NULL DEFAULT false"`
}

type EquipmentRow struct {
	EquipmentID     string     `sql:"equipment_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID       string     `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	CustomerID      string     `sql:"customer_id UUID NOT NULL REFERENCES customers (customer_id)"`
	LocationID      *string    `sql:"location_id UUID REFERENCES customer_locations (location_id)"`
	Kind            string     `sql:"kind STRING NOT NULL"`
	InstallDate     *time.Time `sql:"install_date TIMESTAMPTZ"`
	Condition       string     `sql:"condition STRING NOT NULL DEFAULT 'unknown'"`
	RefrigerantType string     `sql:"refrigerant_type STRING"`
	IsActive        bool       `sql:"is_active BOOL NOT NULL DEFAULT true"`
}

// Job status values, the Job State Machine's closed variant set.
const (
	JobUnassigned = "unassigned"
	JobAssigned   = "assigned"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobCancelled  = "cancelled"
)

// Job priority values, ordered emergency < high < medium < low for Batch
// Dispatcher sort order (ascending index = earlier).
const (
	PriorityEmergency = "emergency"
	PriorityHigh      = "high"
	PriorityMedium    = "medium"
	PriorityLow       = "low"
)

type Job struct {
	JobID                   string     `sql:"job_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID               string     `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	CustomerID              *string    `sql:"customer_id UUID REFERENCES customers (customer_id)"`
	Address                 string     `sql:"address STRING NOT NULL"`
	Latitude                *float64   `sql:"latitude FLOAT"`
	Longitude               *float64   `sql:"longitude FLOAT"`
	GeocodingStatus         string     `sql:"geocoding_status STRING NOT NULL DEFAULT 'pending'"`
	GeocodingRetries        int        `sql:"geocoding_retries INT8 NOT NULL DEFAULT 0"`
	JobType                 string     `sql:"job_type STRING NOT NULL"`
	Priority                string     `sql:"priority STRING NOT NULL"`
	Status                  string     `sql:"status STRING NOT NULL DEFAULT 'unassigned'"`
	AssignedTechID          *string    `sql:"assigned_tech_id UUID REFERENCES employees (employee_id)"`
	ScheduledTime           *time.Time `sql:"scheduled_time TIMESTAMPTZ"`
	StartedAt               *time.Time `sql:"started_at TIMESTAMPTZ"`
	CompletedAt             *time.Time `sql:"completed_at TIMESTAMPTZ"`
	RequiredSkills          []string   `sql:"required_skills STRING[] NOT NULL DEFAULT '{}'"`
	Description             string     `sql:"description STRING"`
	EstimatedDurationMinutes *int      `sql:"estimated_duration_minutes INT8"`
	ActualDurationMinutes    *int      `sql:"actual_duration_minutes INT8"`
	DurationVarianceMinutes  *int      `sql:"duration_variance_minutes INT8"`
	RecurringScheduleID      *string   `sql:"recurring_schedule_id UUID REFERENCES recurring_job_schedules (schedule_id)"`
	IsAfterHours            bool       `sql:"is_after_hours BOOL NOT NULL DEFAULT false"`
	SurchargeFlat           *float64   `sql:"surcharge_flat FLOAT"`
	SurchargePercent        *float64   `sql:"surcharge_percent FLOAT"`
	CreatedAt               time.Time  `sql:"created_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
	UpdatedAt               time.Time  `sql:"updated_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
}

// JobTimeTracking holds exactly one row per Job; timestamps are weakly
// monotonic in the order listed (dispatch/timetracking enforces this at
// write time per the Open Question resolution in DESIGN.md).
type JobTimeTracking struct {
	JobID          string     `sql:"job_id UUID PRIMARY KEY REFERENCES jobs (job_id)"`
	CompanyID      string     `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	DispatchedAt   *time.Time `sql:"dispatched_at TIMESTAMPTZ"`
	DepartedAt     *time.Time `sql:"departed_at TIMESTAMPTZ"`
	ArrivedAt      *time.Time `sql:"arrived_at TIMESTAMPTZ"`
	WorkStartedAt  *time.Time `sql:"work_started_at TIMESTAMPTZ"`
	WorkEndedAt    *time.Time `sql:"work_ended_at TIMESTAMPTZ"`
	DepartedJobAt  *time.Time `sql:"departed_job_at TIMESTAMPTZ"`
}

type JobCompletion struct {
	JobID               string   `sql:"job_id UUID PRIMARY KEY REFERENCES jobs (job_id)"`
	CompanyID           string   `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	DriveTimeMinutes    *int     `sql:"drive_time_minutes INT8"`
	WrenchTimeMinutes   *int     `sql:"wrench_time_minutes INT8"`
	DurationMinutes     *int     `sql:"duration_minutes INT8"`
	FirstTimeFix        *bool    `sql:"first_time_fix BOOL"`
	CallbackRequired    *bool    `sql:"callback_required BOOL"`
	CustomerRating      *int     `sql:"customer_rating INT8"`
	CompletedAt         *time.Time `sql:"completed_at TIMESTAMPTZ"`
}

type JobAssignmentLog struct {
	AssignmentLogID  string    `sql:"assignment_log_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID        string    `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	JobID            string    `sql:"job_id UUID NOT NULL REFERENCES jobs (job_id)"`
	EmployeeID       string    `sql:"employee_id UUID NOT NULL REFERENCES employees (employee_id)"`
	Score            float64   `sql:"score FLOAT NOT NULL"`
	IsManualOverride bool      `sql:"is_manual_override BOOL NOT NULL DEFAULT false"`
	AssignedAt       time.Time `sql:"assigned_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
	AssignedBy       string    `sql:"assigned_by STRING NOT NULL"`
}

type JobReassignmentEvent struct {
	ReassignmentID   string    `sql:"reassignment_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID        string    `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	JobID            string    `sql:"job_id UUID NOT NULL REFERENCES jobs (job_id)"`
	FromEmployeeID   *string   `sql:"from_employee_id UUID REFERENCES employees (employee_id)"`
	ToEmployeeID     string    `sql:"to_employee_id UUID NOT NULL REFERENCES employees (employee_id)"`
	Reason           string    `sql:"reason STRING NOT NULL"`
	IsManualOverride bool      `sql:"is_manual_override BOOL NOT NULL DEFAULT false"`
	ReassignedAt     time.Time `sql:"reassigned_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
}

// RefrigerantLog rows are append-only; a correction references the
// original row rather than mutating it (spec.md §6).
type RefrigerantLog struct {
	RefrigerantLogID   string    `sql:"refrigerant_log_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID          string    `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	JobID              string    `sql:"job_id UUID NOT NULL REFERENCES jobs (job_id)"`
	EquipmentID        string    `sql:"equipment_id UUID NOT NULL REFERENCES equipment (equipment_id)"`
	RefrigerantType    string    `sql:"refrigerant_type STRING NOT NULL"`
	AmountAddedLbs     float64   `sql:"amount_added_lbs FLOAT NOT NULL"`
	AmountRecoveredLbs float64   `sql:"amount_recovered_lbs FLOAT NOT NULL DEFAULT 0"`
	CorrectsLogID      *string   `sql:"corrects_log_id UUID REFERENCES refrigerant_logs (refrigerant_log_id)"`
	RecordedAt         time.Time `sql:"recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
	RecordedBy         string    `sql:"recorded_by UUID NOT NULL REFERENCES employees (employee_id)"`
}

// EscalationPolicy.TriggerConditions and Steps are stored as JSONB; see
// dispatch/escalation for the Go types they decode into.
type EscalationPolicy struct {
	PolicyID          string `sql:"policy_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID         string `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	Name              string `sql:"name STRING NOT NULL"`
	TriggerConditions []byte `sql:"trigger_conditions JSONB NOT NULL DEFAULT '{}'"`
	Steps             []byte `sql:"steps JSONB NOT NULL"`
	Active            bool   `sql:"active BOOL NOT NULL DEFAULT true"`
	FetchOrder        int    `sql:"fetch_order INT8 NOT NULL DEFAULT 0"`
}

type EscalationEvent struct {
	EventID          string     `sql:"event_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID        string     `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	JobID            string     `sql:"job_id UUID NOT NULL REFERENCES jobs (job_id)"`
	PolicyID         string     `sql:"policy_id UUID NOT NULL REFERENCES escalation_policies (policy_id)"`
	CurrentStep      int        `sql:"current_step INT8 NOT NULL DEFAULT 0"`
	NotificationLog  []byte     `sql:"notification_log JSONB NOT NULL DEFAULT '[]'"`
	TriggeredAt      time.Time  `sql:"triggered_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
	TimedOut         bool       `sql:"timed_out BOOL NOT NULL DEFAULT false"`
	ResolvedAt       *time.Time `sql:"resolved_at TIMESTAMPTZ"`
	ResolvedBy       *string    `sql:"resolved_by UUID REFERENCES users (user_id)"`
	ResolutionNotes  *string    `sql:"resolution_notes STRING"`
}

// AfterHoursRule.OnCallEmployeeIDs is stored as an ordered STRING[] of
// employee UUIDs, preserving on-call precedence.
type AfterHoursRule struct {
	RuleID             string   `sql:"rule_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID          string   `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	BranchID           *string  `sql:"branch_id UUID"`
	WeekdayStart       string   `sql:"weekday_start STRING NOT NULL"`
	WeekdayEnd         string   `sql:"weekday_end STRING NOT NULL"`
	WeekendAllDay      bool     `sql:"weekend_all_day BOOL NOT NULL DEFAULT false"`
	RoutingStrategy    string   `sql:"routing_strategy STRING NOT NULL"`
	OnCallEmployeeIDs  []string `sql:"on_call_employee_ids STRING[] NOT NULL DEFAULT '{}'"`
	SurchargeFlat      float64  `sql:"surcharge_flat FLOAT NOT NULL DEFAULT 0"`
	SurchargePercent   float64  `sql:"surcharge_percent FLOAT NOT NULL DEFAULT 0"`
	AutoAccept         bool     `sql:"auto_accept BOOL NOT NULL DEFAULT false"`
	NotifyManager      bool     `sql:"notify_manager BOOL NOT NULL DEFAULT false"`
	ManagerPhone       string   `sql:"manager_phone STRING"`
	Active             bool     `sql:"active BOOL NOT NULL DEFAULT true"`
	FetchOrder         int      `sql:"fetch_order INT8 NOT NULL DEFAULT 0"`
}

// RecurringJobSchedule backs the Recurring Schedule Materializer worker.
type RecurringJobSchedule struct {
	ScheduleID    string    `sql:"schedule_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID     string    `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	CustomerID    string    `sql:"customer_id UUID NOT NULL REFERENCES customers (customer_id)"`
	JobTemplate   []byte    `sql:"job_template JSONB NOT NULL"`
	FrequencyDays int       `sql:"frequency_days INT8 NOT NULL"`
	AdvanceDays   int       `sql:"advance_days INT8 NOT NULL DEFAULT 7"`
	NextRunAt     time.Time `sql:"next_run_at TIMESTAMPTZ NOT NULL"`
	Active        bool      `sql:"active BOOL NOT NULL DEFAULT true"`
}

type MembershipAgreement struct {
	MembershipID   string    `sql:"membership_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID      string    `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	CustomerID     string    `sql:"customer_id UUID NOT NULL REFERENCES customers (customer_id)"`
	Plan           string    `sql:"plan STRING NOT NULL"`
	VisitsAllowed  int       `sql:"visits_allowed INT8 NOT NULL"`
	AnnualFeeCents int       `sql:"annual_fee_cents INT8 NOT NULL"`
	AutoRenew      bool      `sql:"auto_renew BOOL NOT NULL DEFAULT false"`
	StartedAt      time.Time `sql:"started_at TIMESTAMPTZ NOT NULL"`
	ExpiresAt      time.Time `sql:"expires_at TIMESTAMPTZ NOT NULL"`
	RemindedAt     *time.Time `sql:"reminded_at TIMESTAMPTZ"`
	ExpiredAt      *time.Time `sql:"expired_at TIMESTAMPTZ"`
	Active         bool      `sql:"active BOOL NOT NULL DEFAULT true"`
}

type BillingTrigger struct {
	TriggerID    string    `sql:"trigger_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID    string    `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	MembershipID string    `sql:"membership_id UUID NOT NULL REFERENCES membership_agreements (membership_id)"`
	Kind         string    `sql:"kind STRING NOT NULL"`
	AmountCents  int       `sql:"amount_cents INT8 NOT NULL"`
	FiredAt      time.Time `sql:"fired_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
	Processed    bool      `sql:"processed BOOL NOT NULL DEFAULT false"`
}

// ReviewRequest channel is derived from available customer contact
// (phone -> sms, else email) at scheduling time.
type ReviewRequest struct {
	ReviewRequestID string     `sql:"review_request_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID       string     `sql:"company_id UUID NOT NULL REFERENCES companies (company_id)"`
	JobID           string     `sql:"job_id UUID NOT NULL REFERENCES jobs (job_id)"`
	CustomerID      string     `sql:"customer_id UUID NOT NULL REFERENCES customers (customer_id)"`
	Channel         string     `sql:"channel STRING NOT NULL"`
	ScheduledFor    time.Time  `sql:"scheduled_for TIMESTAMPTZ NOT NULL"`
	SentAt          *time.Time `sql:"sent_at TIMESTAMPTZ"`
	Status          string     `sql:"status STRING NOT NULL DEFAULT 'pending'"`
}

// AuditLog is append-only; no deletes (spec.md §6). Every write the
// Tenant-Scoped Query Gateway performs on behalf of a non-platform user is
// wrapped with one of these.
type AuditLog struct {
	AuditLogID  string    `sql:"audit_log_id UUID PRIMARY KEY DEFAULT gen_random_uuid()"`
	CompanyID   *string   `sql:"company_id UUID REFERENCES companies (company_id)"`
	ActorUserID *string   `sql:"actor_user_id UUID REFERENCES users (user_id)"`
	Action      string    `sql:"action STRING NOT NULL"`
	Subject     string    `sql:"subject STRING NOT NULL"`
	Detail      []byte    `sql:"detail JSONB"`
	CreatedAt   time.Time `sql:"created_at TIMESTAMPTZ NOT NULL DEFAULT now()"`
}

// Schema is the full set of CREATE TABLE statements executed once by
// cmd/sqlinit against a fresh database. It is not used to apply migrations
// to an existing database; see cmd/sqlinit's doc comment.
const Schema = `
CREATE TABLE IF NOT EXISTS companies (
	company_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name STRING NOT NULL,
	timezone STRING NOT NULL,
	industry STRING NOT NULL DEFAULT 'hvac',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	user_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID REFERENCES companies (company_id),
	email STRING NOT NULL UNIQUE,
	password_hash STRING NOT NULL,
	role STRING NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS customers (
	customer_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	name STRING NOT NULL,
	phone STRING NOT NULL,
	email STRING,
	address STRING NOT NULL,
	city STRING,
	state STRING,
	zip STRING,
	latitude FLOAT,
	longitude FLOAT,
	geocoding_status STRING NOT NULL DEFAULT 'pending',
	geocoding_retries INT8 NOT NULL DEFAULT 0,
	no_show_count INT8 NOT NULL DEFAULT 0,
	is_active BOOL NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX (company_id)
);

CREATE TABLE IF NOT EXISTS customer_locations (
	location_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	customer_id UUID NOT NULL REFERENCES customers (customer_id),
	address STRING NOT NULL,
	latitude FLOAT,
	longitude FLOAT,
	geocoding_status STRING NOT NULL DEFAULT 'pending',
	geocoding_retries INT8 NOT NULL DEFAULT 0,
	is_primary BOOL NOT NULL DEFAULT false,
	INDEX (company_id),
	INDEX (customer_id)
);

CREATE TABLE IF NOT EXISTS equipment (
	equipment_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	customer_id UUID NOT NULL REFERENCES customers (customer_id),
	location_id UUID REFERENCES customer_locations (location_id),
	kind STRING NOT NULL,
	install_date TIMESTAMPTZ,
	condition STRING NOT NULL DEFAULT 'unknown',
	refrigerant_type STRING,
	is_active BOOL NOT NULL DEFAULT true,
	INDEX (company_id),
	INDEX (customer_id)
);

CREATE TABLE IF NOT EXISTS recurring_job_schedules (
	schedule_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	customer_id UUID NOT NULL REFERENCES customers (customer_id),
	job_template JSONB NOT NULL,
	frequency_days INT8 NOT NULL,
	advance_days INT8 NOT NULL DEFAULT 7,
	next_run_at TIMESTAMPTZ NOT NULL,
	active BOOL NOT NULL DEFAULT true,
	INDEX (active, next_run_at)
);

CREATE TABLE IF NOT EXISTS employees (
	employee_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	user_id UUID REFERENCES users (user_id),
	name STRING NOT NULL,
	skills STRING[] NOT NULL DEFAULT '{}',
	skill_level JSONB NOT NULL DEFAULT '{}',
	is_active BOOL NOT NULL DEFAULT true,
	is_available BOOL NOT NULL DEFAULT true,
	current_job_id UUID,
	current_jobs_count INT8 NOT NULL DEFAULT 0,
	max_concurrent_jobs INT8 NOT NULL DEFAULT 1,
	rating FLOAT,
	home_address STRING NOT NULL,
	current_lat FLOAT,
	current_lng FLOAT,
	location_updated_at TIMESTAMPTZ,
	last_job_completed_at TIMESTAMPTZ,
	INDEX (company_id),
	CHECK (current_jobs_count >= 0)
);

CREATE TABLE IF NOT EXISTS jobs (
	job_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	customer_id UUID REFERENCES customers (customer_id),
	address STRING NOT NULL,
	latitude FLOAT,
	longitude FLOAT,
	geocoding_status STRING NOT NULL DEFAULT 'pending',
	geocoding_retries INT8 NOT NULL DEFAULT 0,
	job_type STRING NOT NULL,
	priority STRING NOT NULL,
	status STRING NOT NULL DEFAULT 'unassigned',
	assigned_tech_id UUID REFERENCES employees (employee_id),
	scheduled_time TIMESTAMPTZ,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	required_skills STRING[] NOT NULL DEFAULT '{}',
	description STRING,
	estimated_duration_minutes INT8,
	actual_duration_minutes INT8,
	duration_variance_minutes INT8,
	recurring_schedule_id UUID REFERENCES recurring_job_schedules (schedule_id),
	is_after_hours BOOL NOT NULL DEFAULT false,
	surcharge_flat FLOAT,
	surcharge_percent FLOAT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX (company_id, status),
	INDEX (assigned_tech_id)
);

ALTER TABLE employees ADD CONSTRAINT IF NOT EXISTS fk_current_job
	FOREIGN KEY (current_job_id) REFERENCES jobs (job_id);

CREATE TABLE IF NOT EXISTS job_time_trackings (
	job_id UUID PRIMARY KEY REFERENCES jobs (job_id),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	dispatched_at TIMESTAMPTZ,
	departed_at TIMESTAMPTZ,
	arrived_at TIMESTAMPTZ,
	work_started_at TIMESTAMPTZ,
	work_ended_at TIMESTAMPTZ,
	departed_job_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS job_completions (
	job_id UUID PRIMARY KEY REFERENCES jobs (job_id),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	drive_time_minutes INT8,
	wrench_time_minutes INT8,
	duration_minutes INT8,
	first_time_fix BOOL,
	callback_required BOOL,
	customer_rating INT8,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS job_assignment_logs (
	assignment_log_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	job_id UUID NOT NULL REFERENCES jobs (job_id),
	employee_id UUID NOT NULL REFERENCES employees (employee_id),
	score FLOAT NOT NULL,
	is_manual_override BOOL NOT NULL DEFAULT false,
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	assigned_by STRING NOT NULL,
	INDEX (job_id)
);

CREATE TABLE IF NOT EXISTS job_reassignment_events (
	reassignment_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	job_id UUID NOT NULL REFERENCES jobs (job_id),
	from_employee_id UUID REFERENCES employees (employee_id),
	to_employee_id UUID NOT NULL REFERENCES employees (employee_id),
	reason STRING NOT NULL,
	is_manual_override BOOL NOT NULL DEFAULT false,
	reassigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX (job_id)
);

CREATE TABLE IF NOT EXISTS refrigerant_logs (
	refrigerant_log_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	job_id UUID NOT NULL REFERENCES jobs (job_id),
	equipment_id UUID NOT NULL REFERENCES equipment (equipment_id),
	refrigerant_type STRING NOT NULL,
	amount_added_lbs FLOAT NOT NULL,
	amount_recovered_lbs FLOAT NOT NULL DEFAULT 0,
	corrects_log_id UUID REFERENCES refrigerant_logs (refrigerant_log_id),
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	recorded_by UUID NOT NULL REFERENCES employees (employee_id),
	INDEX (equipment_id)
);

CREATE TABLE IF NOT EXISTS escalation_policies (
	policy_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	name STRING NOT NULL,
	trigger_conditions JSONB NOT NULL DEFAULT '{}',
	steps JSONB NOT NULL,
	active BOOL NOT NULL DEFAULT true,
	fetch_order INT8 NOT NULL DEFAULT 0,
	INDEX (company_id, fetch_order)
);

CREATE TABLE IF NOT EXISTS escalation_events (
	event_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	job_id UUID NOT NULL REFERENCES jobs (job_id),
	policy_id UUID NOT NULL REFERENCES escalation_policies (policy_id),
	current_step INT8 NOT NULL DEFAULT 0,
	notification_log JSONB NOT NULL DEFAULT '[]',
	triggered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	timed_out BOOL NOT NULL DEFAULT false,
	resolved_at TIMESTAMPTZ,
	resolved_by UUID REFERENCES users (user_id),
	resolution_notes STRING,
	INDEX (job_id),
	INDEX (timed_out, resolved_at)
);

CREATE TABLE IF NOT EXISTS after_hours_rules (
	rule_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	branch_id UUID,
	weekday_start STRING NOT NULL,
	weekday_end STRING NOT NULL,
	weekend_all_day BOOL NOT NULL DEFAULT false,
	routing_strategy STRING NOT NULL,
	on_call_employee_ids STRING[] NOT NULL DEFAULT '{}',
	surcharge_flat FLOAT NOT NULL DEFAULT 0,
	surcharge_percent FLOAT NOT NULL DEFAULT 0,
	auto_accept BOOL NOT NULL DEFAULT false,
	notify_manager BOOL NOT NULL DEFAULT false,
	manager_phone STRING,
	active BOOL NOT NULL DEFAULT true,
	fetch_order INT8 NOT NULL DEFAULT 0,
	INDEX (company_id, branch_id)
);

CREATE TABLE IF NOT EXISTS membership_agreements (
	membership_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	customer_id UUID NOT NULL REFERENCES customers (customer_id),
	plan STRING NOT NULL,
	visits_allowed INT8 NOT NULL,
	annual_fee_cents INT8 NOT NULL,
	auto_renew BOOL NOT NULL DEFAULT false,
	started_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	reminded_at TIMESTAMPTZ,
	expired_at TIMESTAMPTZ,
	active BOOL NOT NULL DEFAULT true,
	INDEX (active, expires_at)
);

CREATE TABLE IF NOT EXISTS billing_triggers (
	trigger_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	membership_id UUID NOT NULL REFERENCES membership_agreements (membership_id),
	kind STRING NOT NULL,
	amount_cents INT8 NOT NULL,
	fired_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed BOOL NOT NULL DEFAULT false,
	INDEX (processed)
);

CREATE TABLE IF NOT EXISTS review_requests (
	review_request_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID NOT NULL REFERENCES companies (company_id),
	job_id UUID NOT NULL REFERENCES jobs (job_id),
	customer_id UUID NOT NULL REFERENCES customers (customer_id),
	channel STRING NOT NULL,
	scheduled_for TIMESTAMPTZ NOT NULL,
	sent_at TIMESTAMPTZ,
	status STRING NOT NULL DEFAULT 'pending',
	INDEX (status, scheduled_for)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	audit_log_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	company_id UUID REFERENCES companies (company_id),
	actor_user_id UUID REFERENCES users (user_id),
	action STRING NOT NULL,
	subject STRING NOT NULL,
	detail JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
