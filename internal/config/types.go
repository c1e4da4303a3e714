package config

// Config is the whole config file (YAML or JSON).
// Unknown fields are rejected so typos fail loudly at load time.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Jobs    JobsConfig    `json:"jobs"`
	Pontta  PonttaConfig  `json:"pontta"`
	Storage StorageConfig `json:"storage"`

	// Roster declares the designer rotation members. Synced into the
	// relational store at startup; rotation flags themselves live only
	// in the store.
	Roster   []RosterEntry  `json:"roster"`
	Rotation RotationConfig `json:"rotation,omitempty"`

	Tasks TasksConfig `json:"tasks,omitempty"`
	Slots SlotsConfig `json:"slots,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"` // trace|debug|info|warn|error
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

// JobsConfig controls the recurring triggers.
//
// Enabled is a pointer so "omitted" defaults to true while an explicit
// false pauses all jobs; the gate is re-read at fire time, so flipping it
// in the file takes effect without a restart.
type JobsConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Timezone string `json:"timezone,omitempty"` // default: America/Manaus

	// Schedules are five-field cron expressions evaluated in Timezone.
	// Defaults: 11:00, 15:00 and 23:59 daily.
	Schedules []string `json:"schedules,omitempty"`

	// TestSchedule adds one extra high-frequency schedule when set
	// (e.g. "*/1 * * * *"). Meant for verification, not production.
	TestSchedule string `json:"test_schedule,omitempty"`

	// OrderDelay / EnvDelay are Go duration strings throttling the
	// pipeline between orders and between environments.
	OrderDelay string `json:"order_delay,omitempty"` // default "500ms"
	EnvDelay   string `json:"env_delay,omitempty"`   // default "300ms"
}

// PonttaConfig configures the order-management API client.
// Email and Password may come from the PONTTA_EMAIL / PONTTA_PASSWORD
// environment variables instead of the file.
type PonttaConfig struct {
	BaseURL      string `json:"base_url"`
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	BusinessUnit string `json:"business_unit,omitempty"`

	Timeout    string `json:"timeout,omitempty"` // Go duration string, default "15s"
	Retries    int    `json:"retries,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`

	// Start/End pin the order query window (RFC3339). When empty the
	// window is "today" in the jobs timezone.
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// StorageConfig selects the relational store.
// DSN may come from the DATABASE_URL environment variable.
type StorageConfig struct {
	Driver      string `json:"driver"` // "sqlite" or "postgres"
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RosterEntry is one designer.
type RosterEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// CanCheck defaults to true; designers with false never get the
	// measurement-check task assigned.
	CanCheck *bool `json:"can_check,omitempty"`

	// Secondary opts the designer into the secondary rotation track.
	Secondary bool `json:"secondary,omitempty"`
}

type RotationConfig struct {
	// SecondaryInitial names the designer who starts the secondary
	// track the first time it is bootstrapped. Empty picks the member
	// with the smallest id.
	SecondaryInitial string `json:"secondary_initial,omitempty"`
}

// TasksConfig holds the business-day distances between the four stages.
// Zero values fall back to 2, the production default.
type TasksConfig struct {
	CheckMinDays int `json:"check_min_days,omitempty"`
	ReviewDays   int `json:"review_days,omitempty"`
	SendDays     int `json:"send_days,omitempty"`
	ApprovalDays int `json:"approval_days,omitempty"`
}

type SlotsConfig struct {
	// Enabled books concrete 90-minute appointment slots for measurement
	// checks instead of bare end-of-day deadlines.
	Enabled bool `json:"enabled,omitempty"`
}
