package version

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/oakbyte/labpanel/internal/version.Version=...".
var Version = "0.3.0"
