package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden at build time with -ldflags "-X edgescan/internal/app/version.buildVersion=...".
var (
	buildVersion = "dev"
	builtAt      = ""
)

type Info struct {
	Version   string `json:"version"`
	BuiltAt   string `json:"built_at,omitempty"`
	GoVersion string `json:"go_version"`
}

func BuildVersion() string {
	if buildVersion != "dev" {
		return buildVersion
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return buildVersion
}

func GetInfo() Info {
	return Info{
		Version:   BuildVersion(),
		BuiltAt:   builtAt,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	s := fmt.Sprintf("edgescan %s (%s)", i.Version, i.GoVersion)
	if i.BuiltAt != "" {
		s += " built " + i.BuiltAt
	}
	return s
}
