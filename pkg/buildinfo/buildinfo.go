// Package buildinfo contains build information.
//
// Build information should be set during compilation by passing
// -ldflags "-X github.com/kmolski/acmebot/pkg/buildinfo.Var=value" to
// "go build".
package buildinfo

// Version identifies the version of acmebot. On development commits, it
// identifies the next release.
const Version = "v0.4.0"

// VersionSuffix is appended to Version in the output of "acmebot -version" to
// build the full version string. This can be overridden when building release
// binaries.
var VersionSuffix = "-dev.unknown"

// Full returns the full version string.
func Full() string {
	return Version + VersionSuffix
}
