// Package buildinfo exposes version metadata injected at build time.
package buildinfo

import "fmt"

// Info captures identifying metadata for a build of ocicall.
type Info struct {
	Version   string
	GitCommit string
	BuildDate string
}

// These variables are intended to be overridden via -ldflags during release builds.
//
//nolint:gochecknoglobals // populated by the linker.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Current returns the build metadata for logging and diagnostics.
func Current() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}
}

// String renders the metadata on one line for -version output.
func (i Info) String() string {
	return fmt.Sprintf("ocicall %s (commit %s, built %s)", i.Version, i.GitCommit, i.BuildDate)
}
