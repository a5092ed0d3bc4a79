package version

// Version is the build version, overridable with
// -ldflags "-X pciplan/pkg/version.Version=...".
var Version = "v0.3.0"
