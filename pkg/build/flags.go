// SPDX-License-Identifier: MIT
//
// Package build exposes the build metadata embedded with -ldflags:
//
//	go build -ldflags "-X eegstream/pkg/build.buildName=eegstream \
//	  -X eegstream/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds carry no flags and report the defaults below.
package build

import (
	"fmt"
	"strings"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables for build information, populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:        "eegstream",
		Description: "Real-time EEG filtering, band power analysis and state classification",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags values into the build information. A
// binary built without any flags keeps the development defaults; a binary
// built with only some of them is rejected, naming every missing flag.
func Initialize() error {
	values := []struct {
		name  string
		value string
		dst   *string
	}{
		{"buildName", buildName, &buildFlags.Name},
		{"buildTime", buildTime, &buildFlags.Time},
		{"buildCommit", buildCommit, &buildFlags.Commit},
		{"buildVersion", buildVersion, &buildFlags.Version},
	}

	var missing []string
	for _, v := range values {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	switch len(missing) {
	case len(values):
		return nil
	case 0:
	default:
		return fmt.Errorf("incomplete build flags, missing %s", strings.Join(missing, ", "))
	}

	for _, v := range values {
		*v.dst = v.value
	}
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String formats the build information for the version command.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
