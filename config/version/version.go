/*
 * Copyright 2020-present Open Networking Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//Package version reports build information of the upgrade tool
package version

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/opencord/voltha-lib-go/v7/pkg/log"
)

const cUnknown = "unknown"

// set via -ldflags "-X github.com/openinverter/oic-upgrade-go/config/version.version=..."
var (
	version   = cUnknown
	vcsRef    = cUnknown
	vcsDirty  = cUnknown
	buildTime = cUnknown
)

// BuildInfo - how and from which sources the binary was built
type BuildInfo struct {
	Version   string `json:"version"`
	VcsRef    string `json:"vcsref"`
	VcsDirty  string `json:"vcsdirty"`
	BuildTime string `json:"buildtime"`
	GoVersion string `json:"goversion"`
	Platform  string `json:"platform"`
}

// VersionInfo is filled from the ldflags values, VCS data stamped by the go tool fills the gaps
var VersionInfo BuildInfo

var logger log.CLogger

func init() {
	VersionInfo = newBuildInfo(debug.ReadBuildInfo())
	var err error
	logger, err = log.RegisterPackage(log.JSON, log.ErrorLevel, log.Fields{"pkg": "version"})
	if err != nil {
		panic(err)
	}
}

func newBuildInfo(aStamped *debug.BuildInfo, aOk bool) BuildInfo {
	info := BuildInfo{
		Version:   version,
		VcsRef:    vcsRef,
		VcsDirty:  vcsDirty,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if !aOk || aStamped == nil {
		return info
	}
	for _, setting := range aStamped.Settings {
		switch {
		case setting.Key == "vcs.revision" && info.VcsRef == cUnknown:
			info.VcsRef = setting.Value
		case setting.Key == "vcs.modified" && info.VcsDirty == cUnknown:
			info.VcsDirty = setting.Value
		case setting.Key == "vcs.time" && info.BuildTime == cUnknown:
			info.BuildTime = setting.Value
		}
	}
	return info
}

// String renders one "label: value" line per field, every line prefixed by aIndent
func (b BuildInfo) String(aIndent string) string {
	fields := [][2]string{
		{"Version", b.Version},
		{"VCS Ref", b.VcsRef},
		{"VCS Dirty", b.VcsDirty},
		{"Built", b.BuildTime},
		{"Go", b.GoVersion},
		{"Platform", b.Platform},
	}
	var builder strings.Builder
	for _, field := range fields {
		fmt.Fprintf(&builder, "%s%-10s %s\n", aIndent, field[0]+":", field[1])
	}
	return builder.String()
}

// GetCodeVersion returns the version injected at build time, or the content of a VERSION file in the working directory
func GetCodeVersion(ctx context.Context) string {
	if VersionInfo.Version != cUnknown {
		return VersionInfo.Version
	}
	content, err := os.ReadFile("VERSION")
	if err != nil {
		logger.Debugw(ctx, "VERSION-file not readable", log.Fields{"error": err})
		return VersionInfo.Version
	}
	return strings.TrimSpace(string(content))
}
