// ABOUTME: Version and product identification
// ABOUTME: Reported by the CLI and in remote control hello messages
package version

import "fmt"

// Version is overridden at build time with -ldflags "-X .../version.Version=x.y.z"
var Version = "0.1.0"

const (
	Product      = "Cuebox"
	Manufacturer = "Harper Reed"
)

// String returns "Cuebox 0.1.0"
func String() string {
	return fmt.Sprintf("%s %s", Product, Version)
}
