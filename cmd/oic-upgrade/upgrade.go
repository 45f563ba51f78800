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
	"errors"
	"fmt"
	"time"

	"github.com/opencord/voltha-lib-go/v7/pkg/log"
	"github.com/pterm/pterm"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/canbus"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/config"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/discovery"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/firmware"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/swupg"
)

// upgradeView renders the status updates of a running upgrade
type upgradeView struct {
	spinner *pterm.SpinnerPrinter
	bar     *pterm.ProgressbarPrinter
	shown   int
}

func (v *upgradeView) startSpinner(aText string) {
	v.stopSpinner()
	v.spinner, _ = pterm.DefaultSpinner.Start(aText)
}

func (v *upgradeView) stopSpinner() {
	if v.spinner != nil {
		_ = v.spinner.Stop()
		v.spinner = nil
	}
}

func (v *upgradeView) stopBar() {
	if v.bar != nil {
		_, _ = v.bar.Stop()
		v.bar = nil
	}
}

func (v *upgradeView) advance(aProgress float64) {
	if v.bar == nil {
		v.bar, _ = pterm.DefaultProgressbar.WithTotal(100).WithTitle("Uploading firmware").Start()
		if v.bar == nil {
			return
		}
	}
	if delta := int(aProgress) - v.shown; delta > 0 {
		v.bar.Add(delta)
		v.shown += delta
	}
}

func (v *upgradeView) update(aStatus swupg.StatusUpdate) {
	switch aStatus.State {
	case swupg.UpgradeStStart:
		v.startSpinner("Waiting for device to connect...")
	case swupg.UpgradeStHeader:
		if v.spinner != nil {
			v.spinner.Success(fmt.Sprintf("Device %s connected", aStatus.Serial))
			v.spinner = nil
		}
	case swupg.UpgradeStUpload, swupg.UpgradeStCheckCrc:
		v.advance(aStatus.Progress)
	case swupg.UpgradeStWaitForDone:
		v.advance(aStatus.Progress)
		v.stopBar()
		v.startSpinner("Waiting for device to complete the upgrade...")
	case swupg.UpgradeStComplete:
		v.stopBar()
		if v.spinner != nil {
			v.spinner.Success("Device completed the upgrade")
			v.spinner = nil
		}
	case swupg.UpgradeStFailure:
		v.stopBar()
		if v.spinner != nil {
			v.spinner.Fail(aStatus.Failure.Description())
			v.spinner = nil
		}
	}
}

func (v *upgradeView) close() {
	v.stopBar()
	v.stopSpinner()
}

func printImageSummary(aLocation string, aImage *firmware.Segmented) {
	pterm.DefaultSection.Println("Firmware image")
	_ = pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Location", "Bytes", "Pages", "Fingerprint"},
		{aLocation, fmt.Sprint(aImage.Len()), fmt.Sprint(aImage.PageCount()), fmt.Sprintf("%08x", aImage.Fingerprint())},
	}).Render()
}

func printUpgradeResult(aResult swupg.Result, aErr error) {
	var upgradeErr *swupg.UpgradeError
	switch {
	case aErr == nil:
		pterm.Success.Printfln("Upgrade of %s completed successfully in %s", aResult.Status.Serial,
			aResult.Elapsed.Round(100*time.Millisecond))
		return
	case errors.As(aErr, &upgradeErr):
		pterm.Error.Printfln("Upgrade failed: %s", upgradeErr.Reason.Description())
	case errors.Is(aErr, swupg.ErrAbandoned):
		pterm.Warning.Printfln("Upgrade abandoned: %s", aErr)
	default:
		pterm.Error.Println(aErr)
	}
	if aResult.DeviceAtRisk {
		pterm.DefaultHeader.WithFullWidth().
			WithBackgroundStyle(pterm.NewStyle(pterm.BgRed)).
			WithTextStyle(pterm.NewStyle(pterm.FgBlack)).
			Println(fmt.Sprintf("Device %s may not boot until it is upgraded again", aResult.Status.Serial))
		pterm.Info.Printfln("Retry with: -recover -serial %s", aResult.Status.Serial)
	}
}

// runUpgrade uploads the configured image to the first matching device
func runUpgrade(ctx context.Context, cf *config.UpgradeFlags) error {
	target, err := cf.Target()
	if err != nil {
		return err
	}

	loader := firmware.NewImageLoader(ctx)
	loader.SetDownloadTimeout(ctx, cf.DownloadTimeout)
	image, err := loader.LoadSegmented(ctx, cf.Image)
	if err != nil {
		return err
	}
	printImageSummary(loader.LastImageLocation(), image)

	transport, err := canbus.Open(ctx, cf.Interface, common.DeviceCanID)
	if err != nil {
		return err
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warnw(ctx, "could not close can interface", log.Fields{"interface": cf.Interface, "error": err})
		}
	}()

	listener := discovery.NewListener(target)
	if listener.Recovery() {
		pterm.Info.Println("Recovery mode: upgrading the first device announcing itself")
	} else {
		pterm.Info.Printfln("Reset or power cycle device %s to start the upgrade", target)
	}

	view := &upgradeView{}
	defer view.close()
	runner := swupg.NewRunner(transport, swupg.NewSession(ctx, image, listener),
		swupg.WithDiscoveryTimeout(cf.DiscoveryTimeout),
		swupg.WithResponseTimeout(cf.ResponseTimeout),
		swupg.WithStatusCallback(view.update))

	logger.Infow(ctx, "starting upgrade", log.Fields{"interface": cf.Interface, "image": cf.Image,
		"pages": image.PageCount(), "recovery": listener.Recovery()})
	result, err := runner.Run(ctx)
	view.close()
	printUpgradeResult(result, err)
	return err
}
