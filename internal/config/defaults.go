package config

const (
	// Filesystem paths
	DefaultConfigPath = "/etc/labpanel/config.yml"
	DefaultDataDir    = "/var/lib/labpanel"

	// Service defaults
	DefaultBindAddress = "0.0.0.0"
	DefaultPort        = 8090

	// Backend defaults
	DefaultDockerSocket        = "/var/run/docker.sock"
	DefaultPollIntervalSeconds = 5
	DefaultStopGraceSeconds    = 10

	// Consecutive poll failures before a backend's resources are
	// downgraded to "unknown".
	DefaultStaleThreshold = 3

	// Auth modes
	AuthModeNone     = "none"
	AuthModePassword = "password"

	// RedactedPlaceholder replaces secrets in logged or echoed config.
	RedactedPlaceholder = "********"
)
