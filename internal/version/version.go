// Package version holds the build version, overridable at link time.
package version

// Version is the current release, set via -ldflags at build time.
var Version = "0.1.0-dev"
