package sna

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	policyPath      string
	logger          *slog.Logger
	version         string
	notifier        Notifier
	extraValidators []Validator
	extraMigrations []fs.FS
}

// WithPort overrides the TCP port from config (SNA_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithPolicyPath overrides the policy document path from config (SNA_POLICY_PATH env var).
func WithPolicyPath(path string) Option {
	return func(o *resolvedOptions) { o.policyPath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithNotifier replaces the default log-backed escalation notifier.
// Only the last call wins.
func WithNotifier(n Notifier) Option {
	return func(o *resolvedOptions) { o.notifier = n }
}

// WithValidator registers an additional post-change validator. Multiple
// validators may be registered; they run after the built-in ones, in
// registration order.
func WithValidator(v Validator) Option {
	return func(o *resolvedOptions) { o.extraValidators = append(o.extraValidators, v) }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the embedded migrations. Multiple filesystems may be registered;
// they are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
