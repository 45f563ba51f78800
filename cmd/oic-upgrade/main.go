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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opencord/voltha-lib-go/v7/pkg/log"

	"github.com/openinverter/oic-upgrade-go/config/version"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/config"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/swupg"
)

const appName = "oic-upgrade"

// exit codes of the tool
const (
	exitOk      = 0
	exitFailed  = 1
	exitSetupNg = 2
)

func printVersion(aAppName string) {
	fmt.Println(aAppName)
	fmt.Println(version.VersionInfo.String("  "))
}

func printBanner() {
	fmt.Println("   ___ ___ ___                                 _      ")
	fmt.Println("  / _ \\_ _/ __|  _  _ _ __  __ _ _ _ __ _ __| |___  ")
	fmt.Println(" | (_) | | (__  | || | '_ \\/ _` | '_/ _` / _` / -_) ")
	fmt.Println("  \\___/___\\___|  \\_,_| .__/\\__, |_| \\__,_\\__,_\\___| ")
	fmt.Println("                     |_|   |___/                    ")
	fmt.Println("                                                    ")
}

//waitForExit cancels the returned context on the first closing signal
func waitForExit(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	go func() {
		defer signal.Stop(signalChannel)
		select {
		case <-runCtx.Done():
		case s := <-signalChannel:
			logger.Infow(ctx, "closing-signal-received", log.Fields{"signal": s})
			cancel()
		}
	}()
	return runCtx, cancel
}

// exitCodeFor maps the outcome of a command to the process exit code
func exitCodeFor(aErr error) int {
	var upgradeErr *swupg.UpgradeError
	switch {
	case aErr == nil:
		return exitOk
	case errors.Is(aErr, config.ErrUsage):
		return exitSetupNg
	case errors.As(aErr, &upgradeErr), errors.Is(aErr, swupg.ErrAbandoned):
		return exitFailed
	}
	return exitSetupNg
}

func run(ctx context.Context, cf *config.UpgradeFlags) error {
	switch cf.Command {
	case config.CmdUpgrade:
		return runUpgrade(ctx, cf)
	case config.CmdListen:
		return runListen(ctx, cf)
	case config.CmdInspect:
		return runInspect(ctx, cf)
	}
	return fmt.Errorf("%w: unknown command %q", config.ErrUsage, cf.Command)
}

func main() {
	start := time.Now()
	ctx := context.Background()

	cf := config.NewUpgradeFlags()
	if err := cf.ParseCommandArguments(appName, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSetupNg)
	}

	// Setup logging
	logLevel, err := log.StringToLogLevel(cf.LogLevel)
	if err != nil {
		logger.Fatalf(ctx, "Cannot setup logging, %s", err)
	}

	// Setup default logger - applies for packages that do not have specific logger set
	if _, err := log.SetDefaultLogger(log.JSON, logLevel, log.Fields{"app": appName}); err != nil {
		logger.With(log.Fields{"error": err}).Fatal(ctx, "Cannot setup logging")
	}

	// Update all loggers (provisioned via init) with a common field
	if err := log.UpdateAllLoggers(log.Fields{"app": appName}); err != nil {
		logger.With(log.Fields{"error": err}).Fatal(ctx, "Cannot setup logging")
	}

	log.SetAllLogLevel(logLevel)

	defer func() {
		_ = log.CleanUp()
	}()

	// Print version / build information and exit
	if cf.DisplayVersionOnly {
		printVersion(appName + " " + version.GetCodeVersion(ctx))
		return
	}
	logger.Infow(ctx, "config", log.Fields{"BuildVersion": version.VersionInfo.String("  ")})
	logger.Infow(ctx, "config", log.Fields{"Arguments": os.Args[1:]})

	// Print banner if specified
	if cf.Banner {
		printBanner()
	}

	runCtx, cancel := waitForExit(ctx)
	err = run(runCtx, cf)
	cancel()

	code := exitCodeFor(err)
	if err != nil {
		logger.Errorw(ctx, "command failed", log.Fields{"command": cf.Command, "error": err, "exit-code": code})
	}
	logger.Infow(ctx, "run-time", log.Fields{"command": cf.Command, "duration": time.Since(start).String()})
	if code != exitOk {
		_ = log.CleanUp()
		os.Exit(code)
	}
}
