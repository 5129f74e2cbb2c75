// Package version carries build metadata injected at link time.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single human-readable version line.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}

// UserAgent returns the User-Agent value used on outbound HTTP requests.
func UserAgent() string {
	return "driverwatch/" + Version
}
