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

//Package config provides the command line configuration of the upgrade tool
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

// upgrade tool default constants
const (
	defaultInterface          = "can0"
	defaultSerial             = ""
	defaultRecover            = false
	defaultDiscoveryTimeout   = 5 * time.Second
	defaultResponseTimeout    = 1 * time.Second
	defaultListenDuration     = 10 * time.Second
	defaultDownloadTimeout    = 30 * time.Second
	defaultLoglevel           = "WARN"
	defaultBanner             = false
	defaultDisplayVersionOnly = false

	// interfaceEnv overrides the default CAN interface
	interfaceEnv = "OIC_CAN_INTERFACE"
)

// commands of the upgrade tool
const (
	CmdUpgrade = "upgrade"
	CmdListen  = "listen"
	CmdInspect = "inspect"
)

// ErrUsage is matched by every command line error
var ErrUsage = errors.New("invalid command line")

// UpgradeFlags represents the set of configurations used by the upgrade tool
type UpgradeFlags struct {
	// Command line parameters
	Interface          string
	Serial             string
	Recover            bool
	DiscoveryTimeout   time.Duration
	ResponseTimeout    time.Duration
	ListenDuration     time.Duration
	DownloadTimeout    time.Duration
	LogLevel           string
	Banner             bool
	DisplayVersionOnly bool

	// Positional parameters
	Command string
	Image   string
}

// NewUpgradeFlags returns a new UpgradeFlags instance with default values
func NewUpgradeFlags() *UpgradeFlags {
	upgradeFlags := &UpgradeFlags{ // Default values
		Interface:          defaultInterface,
		Serial:             defaultSerial,
		Recover:            defaultRecover,
		DiscoveryTimeout:   defaultDiscoveryTimeout,
		ResponseTimeout:    defaultResponseTimeout,
		ListenDuration:     defaultListenDuration,
		DownloadTimeout:    defaultDownloadTimeout,
		LogLevel:           defaultLoglevel,
		Banner:             defaultBanner,
		DisplayVersionOnly: defaultDisplayVersionOnly,
	}
	return upgradeFlags
}

// ParseCommandArguments parses the arguments when running the upgrade tool
func (so *UpgradeFlags) ParseCommandArguments(aProgram string, aArgs []string, aOutput io.Writer) error {
	flags := flag.NewFlagSet(aProgram, flag.ContinueOnError)
	flags.SetOutput(aOutput)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "Usage: %s [flags] %s|%s <firmware>|%s\n", aProgram, CmdUpgrade, CmdInspect, CmdListen)
		flags.PrintDefaults()
	}

	interfaceDefault := defaultInterface
	if ifName := getInterfaceFromEnv(); ifName != "" {
		interfaceDefault = ifName
	}
	help := fmt.Sprintf("SocketCAN interface the device is connected to (env %s)", interfaceEnv)
	flags.StringVar(&(so.Interface), "interface", interfaceDefault, help)

	help = fmt.Sprintf("Serial number of the device to upgrade, 8 hex digits")
	flags.StringVar(&(so.Serial), "serial", defaultSerial, help)

	help = fmt.Sprintf("Upgrade the first device that boots, e.g. a device stuck in its bootloader")
	flags.BoolVar(&(so.Recover), "recover", defaultRecover, help)

	help = fmt.Sprintf("Time to wait for the device to reset and start the upgrade process")
	flags.DurationVar(&(so.DiscoveryTimeout), "wait", defaultDiscoveryTimeout, help)

	help = fmt.Sprintf("Time the device may stay silent once the upgrade has started")
	flags.DurationVar(&(so.ResponseTimeout), "timeout", defaultResponseTimeout, help)

	help = fmt.Sprintf("Time to listen for booting devices with the %s command", CmdListen)
	flags.DurationVar(&(so.ListenDuration), "listen_duration", defaultListenDuration, help)

	help = fmt.Sprintf("Maximum time to download a firmware image given as http(s) URL")
	flags.DurationVar(&(so.DownloadTimeout), "download_timeout", defaultDownloadTimeout, help)

	help = fmt.Sprintf("Log level")
	flags.StringVar(&(so.LogLevel), "log_level", defaultLoglevel, help)

	help = fmt.Sprintf("Show startup banner log lines")
	flags.BoolVar(&(so.Banner), "banner", defaultBanner, help)

	help = fmt.Sprintf("Show version information and exit")
	flags.BoolVar(&(so.DisplayVersionOnly), "version", defaultDisplayVersionOnly, help)

	if err := flags.Parse(aArgs); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if so.DisplayVersionOnly {
		return nil
	}

	positional := flags.Args()
	if len(positional) == 0 {
		return fmt.Errorf("%w: a command is required", ErrUsage)
	}
	so.Command = positional[0]
	switch so.Command {
	case CmdUpgrade, CmdInspect:
		if len(positional) != 2 {
			return fmt.Errorf("%w: %s needs exactly one firmware file or URL", ErrUsage, so.Command)
		}
		so.Image = positional[1]
	case CmdListen:
		if len(positional) != 1 {
			return fmt.Errorf("%w: %s takes no arguments", ErrUsage, so.Command)
		}
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, so.Command)
	}
	return so.Validate()
}

// Validate checks the combination of parameters
func (so *UpgradeFlags) Validate() error {
	if so.Interface == "" {
		return fmt.Errorf("%w: -interface must not be empty", ErrUsage)
	}
	if so.DiscoveryTimeout <= 0 || so.ResponseTimeout <= 0 || so.ListenDuration <= 0 || so.DownloadTimeout <= 0 {
		return fmt.Errorf("%w: durations must be positive", ErrUsage)
	}
	if so.Serial != "" {
		if _, err := common.ParseDeviceIdentity(so.Serial); err != nil {
			return fmt.Errorf("%w: %w", ErrUsage, err)
		}
	}
	if so.Command == CmdUpgrade && so.Serial == "" && !so.Recover {
		return fmt.Errorf("%w: %s needs -serial or -recover", ErrUsage, CmdUpgrade)
	}
	return nil
}

// Target returns the device to upgrade, nil means any device
func (so *UpgradeFlags) Target() (*common.DeviceIdentity, error) {
	if so.Serial == "" {
		return nil, nil
	}
	serial, err := common.ParseDeviceIdentity(so.Serial)
	if err != nil {
		return nil, err
	}
	return &serial, nil
}

func getInterfaceFromEnv() string {
	return os.Getenv(interfaceEnv)
}
