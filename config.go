package ktl

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/bus"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/heartbeat"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/logstore"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/uploader"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/internal/worker"
	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// BusConfig controls the request/acknowledge retry layer.
type BusConfig struct {
	// ExpirationWindow is how long one delivery attempt waits for its acknowledge.
	ExpirationWindow time.Duration `yaml:"expirationWindow"`

	// MaxRetries is the number of attempts before a request permanently fails.
	MaxRetries int `yaml:"maxRetries"`

	// TickInterval is the period of the expiration scan.
	TickInterval time.Duration `yaml:"tickInterval"`
}

// HeartbeatConfig controls the app-side monitor and the worker-side responder.
type HeartbeatConfig struct {
	// Interval is the period between heartbeat requests.
	Interval time.Duration `yaml:"interval"`

	// MaxClockSkew bounds |worker clock - heartbeat send time| for an acknowledge.
	MaxClockSkew time.Duration `yaml:"maxClockSkew"`

	// LivenessCollection is the record collection stamped on every heartbeat.
	LivenessCollection string `yaml:"livenessCollection"`

	// LivenessRecordID is the record updated in place. Empty creates a record per heartbeat.
	LivenessRecordID string `yaml:"livenessRecordId"`

	// SubmitTimeout bounds the liveness write.
	SubmitTimeout time.Duration `yaml:"submitTimeout"`
}

// WorkerConfig controls the embedded worker window.
type WorkerConfig struct {
	// Enabled turns the worker window on. When off, the app runs the upload scheduler itself.
	Enabled bool `yaml:"enabled"`

	// Route is loaded in the worker window.
	Route string `yaml:"route"`

	// CreationTimeout is how long a new window has to announce readiness.
	CreationTimeout time.Duration `yaml:"creationTimeout"`

	// RecreateInterval is the period of unconditional recreation after the first ready.
	RecreateInterval time.Duration `yaml:"recreateInterval"`
}

// LogsConfig controls the log accumulator.
type LogsConfig struct {
	MaxEntries          int              `yaml:"maxEntries"`
	EvictionHeadroom    int              `yaml:"evictionHeadroom"`
	SingleSlot          []types.Category `yaml:"singleSlot"`
	MaintenanceInterval time.Duration    `yaml:"maintenanceInterval"`
}

// UploadConfig controls the telemetry upload scheduler.
type UploadConfig struct {
	// Collection is the record collection log batches are posted to.
	Collection string `yaml:"collection"`

	HighPriorityInterval time.Duration `yaml:"highPriorityInterval"`
	LowPriorityInterval  time.Duration `yaml:"lowPriorityInterval"`
	LowPriorityMaxAge    time.Duration `yaml:"lowPriorityMaxAge"`

	// Developer marks a developer session: shorter low-priority interval and age.
	Developer              bool          `yaml:"developer"`
	DevLowPriorityInterval time.Duration `yaml:"devLowPriorityInterval"`
	DevLowPriorityMaxAge   time.Duration `yaml:"devLowPriorityMaxAge"`

	// DeveloperEmail is attached to critical batches.
	DeveloperEmail string `yaml:"developerEmail"`

	SubmitTimeout time.Duration `yaml:"submitTimeout"`
}

// Config is the configuration shared by the App and Worker runtimes.
//
// All duration fields accept standard Go duration strings like "10s", "5m", "1h".
type Config struct {
	// AppVersion is this build's software version, compared during the ready handshake.
	AppVersion string `yaml:"appVersion"`

	// UserID scopes stored log batches.
	UserID string `yaml:"userId"`

	// Namespace is the application-root prefix for store keys and transport subjects.
	Namespace string `yaml:"namespace"`

	Bus       BusConfig       `yaml:"bus"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logs      LogsConfig      `yaml:"logs"`
	Upload    UploadConfig    `yaml:"upload"`
}

// DefaultConfig returns a Config with production defaults.
//
// The worker window is enabled; AppVersion must still be set.
func DefaultConfig() Config {
	return Config{
		UserID:    logstore.DefaultUserID,
		Namespace: "ktl",
		Bus: BusConfig{
			ExpirationWindow: bus.DefaultExpirationWindow,
			MaxRetries:       bus.DefaultMaxRetries,
			TickInterval:     bus.DefaultTickInterval,
		},
		Heartbeat: HeartbeatConfig{
			Interval:           heartbeat.DefaultInterval,
			MaxClockSkew:       heartbeat.DefaultMaxClockSkew,
			LivenessCollection: "ktl_liveness",
			SubmitTimeout:      heartbeat.DefaultSubmitTimeout,
		},
		Worker: WorkerConfig{
			Enabled:          true,
			Route:            worker.DefaultRoute,
			CreationTimeout:  worker.DefaultCreationTimeout,
			RecreateInterval: worker.DefaultRecreateInterval,
		},
		Logs: LogsConfig{
			MaxEntries:          logstore.DefaultMaxEntries,
			EvictionHeadroom:    logstore.DefaultEvictionHeadroom,
			SingleSlot:          logstore.DefaultSingleSlot(),
			MaintenanceInterval: logstore.DefaultMaintenanceInterval,
		},
		Upload: UploadConfig{
			Collection:             uploader.DefaultCollection,
			HighPriorityInterval:   uploader.DefaultHighPriorityInterval,
			LowPriorityInterval:    uploader.DefaultLowPriorityInterval,
			LowPriorityMaxAge:      uploader.DefaultLowPriorityMaxAge,
			DevLowPriorityInterval: uploader.DefaultDevLowPriorityInterval,
			DevLowPriorityMaxAge:   uploader.DefaultDevLowPriorityMaxAge,
			SubmitTimeout:          uploader.DefaultSubmitTimeout,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Worker.Enabled is left as given: false is a valid choice.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	d := DefaultConfig()

	if cfg.UserID == "" {
		cfg.UserID = d.UserID
	}
	if cfg.Namespace == "" {
		cfg.Namespace = d.Namespace
	}

	if cfg.Bus.ExpirationWindow == 0 {
		cfg.Bus.ExpirationWindow = d.Bus.ExpirationWindow
	}
	if cfg.Bus.MaxRetries == 0 {
		cfg.Bus.MaxRetries = d.Bus.MaxRetries
	}
	if cfg.Bus.TickInterval == 0 {
		cfg.Bus.TickInterval = d.Bus.TickInterval
	}

	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = d.Heartbeat.Interval
	}
	if cfg.Heartbeat.MaxClockSkew == 0 {
		cfg.Heartbeat.MaxClockSkew = d.Heartbeat.MaxClockSkew
	}
	if cfg.Heartbeat.LivenessCollection == "" {
		cfg.Heartbeat.LivenessCollection = d.Heartbeat.LivenessCollection
	}
	if cfg.Heartbeat.SubmitTimeout == 0 {
		cfg.Heartbeat.SubmitTimeout = d.Heartbeat.SubmitTimeout
	}

	if cfg.Worker.Route == "" {
		cfg.Worker.Route = d.Worker.Route
	}
	if cfg.Worker.CreationTimeout == 0 {
		cfg.Worker.CreationTimeout = d.Worker.CreationTimeout
	}
	if cfg.Worker.RecreateInterval == 0 {
		cfg.Worker.RecreateInterval = d.Worker.RecreateInterval
	}

	if cfg.Logs.MaxEntries == 0 {
		cfg.Logs.MaxEntries = d.Logs.MaxEntries
	}
	if cfg.Logs.EvictionHeadroom == 0 {
		cfg.Logs.EvictionHeadroom = d.Logs.EvictionHeadroom
	}
	if cfg.Logs.SingleSlot == nil {
		cfg.Logs.SingleSlot = d.Logs.SingleSlot
	}
	if cfg.Logs.MaintenanceInterval == 0 {
		cfg.Logs.MaintenanceInterval = d.Logs.MaintenanceInterval
	}

	if cfg.Upload.Collection == "" {
		cfg.Upload.Collection = d.Upload.Collection
	}
	if cfg.Upload.HighPriorityInterval == 0 {
		cfg.Upload.HighPriorityInterval = d.Upload.HighPriorityInterval
	}
	if cfg.Upload.LowPriorityInterval == 0 {
		cfg.Upload.LowPriorityInterval = d.Upload.LowPriorityInterval
	}
	if cfg.Upload.LowPriorityMaxAge == 0 {
		cfg.Upload.LowPriorityMaxAge = d.Upload.LowPriorityMaxAge
	}
	if cfg.Upload.DevLowPriorityInterval == 0 {
		cfg.Upload.DevLowPriorityInterval = d.Upload.DevLowPriorityInterval
	}
	if cfg.Upload.DevLowPriorityMaxAge == 0 {
		cfg.Upload.DevLowPriorityMaxAge = d.Upload.DevLowPriorityMaxAge
	}
	if cfg.Upload.SubmitTimeout == 0 {
		cfg.Upload.SubmitTimeout = d.Upload.SubmitTimeout
	}
}

// Validate checks configuration constraints.
//
// Hard Validation Rules:
//   - AppVersion is set
//   - Namespace and UserID are single key tokens (no '.', ' ', '*', '>')
//   - Bus.TickInterval <= Bus.ExpirationWindow (expiry is detected within one window)
//   - Worker.RecreateInterval > Worker.CreationTimeout
//   - all durations and counts positive
//
// Returns:
//   - error: Validation error with clear explanation, nil if valid
func (cfg *Config) Validate() error {
	if cfg.AppVersion == "" {
		return errors.New("AppVersion is required")
	}
	if err := validToken("Namespace", cfg.Namespace); err != nil {
		return err
	}
	if err := validToken("UserID", cfg.UserID); err != nil {
		return err
	}

	if cfg.Bus.ExpirationWindow <= 0 || cfg.Bus.TickInterval <= 0 {
		return errors.New("Bus.ExpirationWindow and Bus.TickInterval must be positive")
	}
	if cfg.Bus.MaxRetries < 1 {
		return fmt.Errorf("Bus.MaxRetries must be >= 1, got %d", cfg.Bus.MaxRetries)
	}
	if cfg.Bus.TickInterval > cfg.Bus.ExpirationWindow {
		return fmt.Errorf(
			"Bus.TickInterval (%v) must be <= Bus.ExpirationWindow (%v)",
			cfg.Bus.TickInterval, cfg.Bus.ExpirationWindow,
		)
	}

	if cfg.Heartbeat.Interval <= 0 || cfg.Heartbeat.MaxClockSkew <= 0 || cfg.Heartbeat.SubmitTimeout <= 0 {
		return errors.New("Heartbeat durations must be positive")
	}

	if cfg.Worker.CreationTimeout <= 0 {
		return errors.New("Worker.CreationTimeout must be positive")
	}
	if cfg.Worker.RecreateInterval <= cfg.Worker.CreationTimeout {
		return fmt.Errorf(
			"Worker.RecreateInterval (%v) must be > Worker.CreationTimeout (%v)",
			cfg.Worker.RecreateInterval, cfg.Worker.CreationTimeout,
		)
	}

	if cfg.Logs.MaxEntries < 1 || cfg.Logs.EvictionHeadroom < 0 || cfg.Logs.MaintenanceInterval <= 0 {
		return errors.New("Logs.MaxEntries, Logs.EvictionHeadroom and Logs.MaintenanceInterval are out of range")
	}

	if cfg.Upload.HighPriorityInterval <= 0 || cfg.Upload.LowPriorityInterval <= 0 ||
		cfg.Upload.DevLowPriorityInterval <= 0 || cfg.Upload.SubmitTimeout <= 0 {
		return errors.New("Upload intervals and SubmitTimeout must be positive")
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for non-recommended values.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	detection := cfg.Bus.ExpirationWindow * time.Duration(cfg.Bus.MaxRetries)
	if cfg.Worker.Enabled && detection >= cfg.Worker.RecreateInterval {
		logger.Warn(
			"heartbeat failure detection is slower than periodic recreation",
			"detection", detection,
			"recreateInterval", cfg.Worker.RecreateInterval,
		)
	}

	if cfg.Heartbeat.MaxClockSkew < cfg.Bus.ExpirationWindow {
		logger.Warn(
			"MaxClockSkew is below ExpirationWindow, retried heartbeats will never be acknowledged",
			"maxClockSkew", cfg.Heartbeat.MaxClockSkew,
			"expirationWindow", cfg.Bus.ExpirationWindow,
		)
	}

	if cfg.Worker.Enabled && cfg.Heartbeat.Interval < detection {
		logger.Warn(
			"heartbeat interval is below failure detection time, several heartbeats will be pending at once",
			"interval", cfg.Heartbeat.Interval,
			"detection", detection,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := ktl.TestConfig()
//	cfg.AppVersion = "1.0.0"
//	app, err := ktl.NewApp(cfg, deps)
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.AppVersion = "test"

	cfg.Bus.ExpirationWindow = 100 * time.Millisecond
	cfg.Bus.MaxRetries = 3
	cfg.Bus.TickInterval = 10 * time.Millisecond
	cfg.Heartbeat.Interval = 200 * time.Millisecond
	cfg.Heartbeat.SubmitTimeout = time.Second
	cfg.Worker.CreationTimeout = 500 * time.Millisecond
	cfg.Worker.RecreateInterval = 5 * time.Second
	cfg.Logs.MaintenanceInterval = time.Second
	cfg.Upload.HighPriorityInterval = 50 * time.Millisecond
	cfg.Upload.LowPriorityInterval = 100 * time.Millisecond
	cfg.Upload.SubmitTimeout = time.Second

	return cfg
}

// ReadConfig reads a YAML configuration file over DefaultConfig without validating it.
// Use it when values are still to be overridden, for example from flags.
func ReadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadConfig reads a YAML configuration file, applies defaults and validates it.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: The loaded configuration
//   - error: Read, parse or validation error (validation wraps ErrInvalidConfig)
func LoadConfig(path string) (Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return Config{}, err
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

func (cfg *Config) busConfig() bus.Config {
	return bus.Config{
		ExpirationWindow: cfg.Bus.ExpirationWindow,
		MaxRetries:       cfg.Bus.MaxRetries,
		TickInterval:     cfg.Bus.TickInterval,
	}
}

func (cfg *Config) workerConfig() worker.Config {
	return worker.Config{
		Enabled:          cfg.Worker.Enabled,
		Route:            cfg.Worker.Route,
		CreationTimeout:  cfg.Worker.CreationTimeout,
		RecreateInterval: cfg.Worker.RecreateInterval,
	}
}

func (cfg *Config) responderConfig() heartbeat.ResponderConfig {
	return heartbeat.ResponderConfig{
		Collection:    cfg.Heartbeat.LivenessCollection,
		RecordID:      cfg.Heartbeat.LivenessRecordID,
		MaxClockSkew:  cfg.Heartbeat.MaxClockSkew,
		SubmitTimeout: cfg.Heartbeat.SubmitTimeout,
	}
}

func (cfg *Config) logstoreConfig() logstore.Config {
	return logstore.Config{
		UserID:              cfg.UserID,
		MaxEntries:          cfg.Logs.MaxEntries,
		EvictionHeadroom:    cfg.Logs.EvictionHeadroom,
		SingleSlot:          cfg.Logs.SingleSlot,
		MaintenanceInterval: cfg.Logs.MaintenanceInterval,
	}
}

func (cfg *Config) uploaderConfig() uploader.Config {
	return uploader.Config{
		Collection:             cfg.Upload.Collection,
		UserID:                 cfg.UserID,
		HighPriorityInterval:   cfg.Upload.HighPriorityInterval,
		LowPriorityInterval:    cfg.Upload.LowPriorityInterval,
		LowPriorityMaxAge:      cfg.Upload.LowPriorityMaxAge,
		Developer:              cfg.Upload.Developer,
		DevLowPriorityInterval: cfg.Upload.DevLowPriorityInterval,
		DevLowPriorityMaxAge:   cfg.Upload.DevLowPriorityMaxAge,
		DeveloperEmail:         cfg.Upload.DeveloperEmail,
		SubmitTimeout:          cfg.Upload.SubmitTimeout,
	}
}

func validToken(field, s string) error {
	if s == "" {
		return fmt.Errorf("%s is required", field)
	}
	if strings.ContainsAny(s, ". *>") {
		return fmt.Errorf("%s %q must not contain '.', ' ', '*' or '>'", field, s)
	}

	return nil
}
