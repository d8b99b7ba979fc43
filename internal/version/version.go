// ABOUTME: Product and version identification
// ABOUTME: Reported by the CLI, the bridge hello and the mDNS TXT record
package version

const (
	Product      = "minitester"
	Manufacturer = "miniaud"
)

// Version is overridden at build time with -ldflags "-X .../internal/version.Version=..."
var Version = "0.1.0-dev"

// String returns "product version"
func String() string {
	return Product + " " + Version
}
