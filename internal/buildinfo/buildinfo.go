// Package buildinfo reports the version bpt was built from.
package buildinfo

import (
	"runtime/debug"

	"github.com/boardindex/bpt/internal/domain"
)

// Build information (set at compile time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Get returns the linker-provided build information, falling back to the
// module build info when the binary was built without -ldflags.
func Get() domain.VersionResponse {
	resp := domain.VersionResponse{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
	if Version != "dev" {
		return resp
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return resp
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		resp.Version = v
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			resp.GitCommit = setting.Value
		case "vcs.time":
			resp.BuildTime = setting.Value
		}
	}
	return resp
}
