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

//Package main -> this is the entry point of the bootloader upgrade tool
package main

import (
	"context"
	"fmt"

	"github.com/opencord/voltha-lib-go/v7/pkg/log"
	"github.com/pterm/pterm"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/canbus"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/config"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/discovery"
)

// bootloaderVersion renders the version bytes of a Hello, the minor byte is 0 on the first bootloaders
func bootloaderVersion(aMajor byte, aMinor byte) string {
	if aMinor == 0 {
		return fmt.Sprintf("%c", aMajor)
	}
	return fmt.Sprintf("%c.%c", aMajor, aMinor)
}

func announcementTable(aSeen []discovery.Announcement) pterm.TableData {
	data := pterm.TableData{{"Serial", "Bootloader", "Hellos", "First seen", "Last seen"}}
	for _, a := range aSeen {
		data = append(data, []string{
			a.Serial.String(),
			bootloaderVersion(a.Major, a.Minor),
			fmt.Sprint(a.Count),
			a.FirstSeen.Format("15:04:05.000"),
			a.LastSeen.Format("15:04:05.000"),
		})
	}
	return data
}

// runListen lists the devices waiting in their bootloader without talking to them
func runListen(ctx context.Context, cf *config.UpgradeFlags) error {
	transport, err := canbus.Open(ctx, cf.Interface, common.DeviceCanID)
	if err != nil {
		return err
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warnw(ctx, "could not close can interface", log.Fields{"interface": cf.Interface, "error": err})
		}
	}()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Listening on %s for %s...", cf.Interface, cf.ListenDuration))
	seen, err := discovery.NewListener(nil).Scan(ctx, transport, cf.ListenDuration, func(a discovery.Announcement) {
		if spinner != nil {
			spinner.UpdateText(fmt.Sprintf("Found device %s", a.Serial))
		}
	})
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil && ctx.Err() == nil {
		return err
	}

	if len(seen) == 0 {
		pterm.Warning.Println("No device announced itself")
		return nil
	}
	pterm.DefaultSection.Println("Devices in bootloader mode")
	return pterm.DefaultTable.WithHasHeader().WithData(announcementTable(seen)).Render()
}
