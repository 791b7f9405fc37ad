// Package version is the single source of truth for the module's version.
package version

// Version is the semantic version of the expect library and CLI.
const Version = "0.3.0"

// String returns the current version.
func String() string {
	return Version
}
