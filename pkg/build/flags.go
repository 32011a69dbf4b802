// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded into the binary at link time:
//
//	go build -ldflags "-X playhead/pkg/build.buildName=playhead \
//	  -X playhead/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds without ldflags report "dev"/"unknown" values.
package build

import (
	"errors"
	"fmt"
)

// Description is the one-line summary shown in CLI help.
const Description = "Host transport and play head for real-time audio processors"

// Info is the build information of the running binary.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats i for the version command.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:    "playhead",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
}

// Initialize copies the ldflags values into the build information. It
// returns an error naming every missing flag; in that case the development
// defaults stay in place.
func Initialize() error {
	var errs []error
	if buildName == "" {
		errs = append(errs, errors.New("BuildName is required"))
	}
	if buildTime == "" {
		errs = append(errs, errors.New("BuildTime is required"))
	}
	if buildCommit == "" {
		errs = append(errs, errors.New("BuildCommit is required"))
	}
	if buildVersion == "" {
		errs = append(errs, errors.New("BuildVersion is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	buildInfo = &Info{
		Name:    buildName,
		Time:    buildTime,
		Commit:  buildCommit,
		Version: buildVersion,
	}
	return nil
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() Info {
	return *buildInfo
}
