package model

import (
	"fmt"
	"runtime"
)

// BuildInfo describes the running binary. Values are injected at link time by the build.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	BuiltAt   string `json:"built_at"`
	GoVersion string `json:"go_version"`
}

// String renders the one-line banner printed by the version command.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s v%s, %s/%s, built %s from %s@%s, with %s",
		b.Name, b.Version, runtime.GOOS, runtime.GOARCH, b.BuiltAt, b.Branch, b.Commit, b.GoVersion)
}
