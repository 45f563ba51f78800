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

package swupg

import (
	"errors"
	"fmt"
	"time"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

// upgrade FSM related events
const (
	UpgradeEvDeviceFound = "UpgradeEvDeviceFound"
	UpgradeEvUpload      = "UpgradeEvUpload"
	UpgradeEvPageSent    = "UpgradeEvPageSent"
	UpgradeEvNextPage    = "UpgradeEvNextPage"
	UpgradeEvWaitForDone = "UpgradeEvWaitForDone"
	UpgradeEvDone        = "UpgradeEvDone"
	UpgradeEvFail        = "UpgradeEvFail"
)

// upgrade FSM related states
const (
	UpgradeStStart       = "UpgradeStStart"
	UpgradeStHeader      = "UpgradeStHeader"
	UpgradeStUpload      = "UpgradeStUpload"
	UpgradeStCheckCrc    = "UpgradeStCheckCrc"
	UpgradeStWaitForDone = "UpgradeStWaitForDone"
	UpgradeStComplete    = "UpgradeStComplete"
	UpgradeStFailure     = "UpgradeStFailure"
)

const (
	cDefaultDiscoveryTimeout = 5 * time.Second
	cDefaultResponseTimeout  = 1 * time.Second
)

// IsTerminal returns true for the states an upgrade never leaves
func IsTerminal(aState string) bool {
	return aState == UpgradeStComplete || aState == UpgradeStFailure
}

// Reason - why an upgrade ended in UpgradeStFailure
type Reason uint8

const (
	// ReasonNone - no failure
	ReasonNone Reason = iota
	// ReasonNoResponse - no device announced itself in time
	ReasonNoResponse
	// ReasonTimeout - the selected device stopped responding
	ReasonTimeout
	// ReasonProtocolError - a frame arrived that is not valid at this point of the upgrade
	ReasonProtocolError
	// ReasonDeviceReportedError - the device sent an error while receiving page data
	ReasonDeviceReportedError
	// ReasonCrcMismatch - the device rejected a page checksum
	ReasonCrcMismatch
	// ReasonUpgradeInProgress - another tool is already upgrading a device on the bus
	ReasonUpgradeInProgress
)

func (r Reason) String() string {
	names := [...]string{
		"None",
		"NoResponse",
		"Timeout",
		"ProtocolError",
		"DeviceReportedError",
		"CrcMismatch",
		"UpgradeInProgress",
	}
	if int(r) >= len(names) {
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
	return names[r]
}

// Description returns the message shown to the operator
func (r Reason) Description() string {
	switch r {
	case ReasonNone:
		return "no failure"
	case ReasonNoResponse:
		return "No device started the upgrade process"
	case ReasonTimeout:
		return "Device stopped responding during the upgrade"
	case ReasonProtocolError:
		return "Unexpected CAN frame received from device"
	case ReasonDeviceReportedError:
		return "Device reported an error while receiving firmware data"
	case ReasonCrcMismatch:
		return "Firmware upload data corruption detected"
	case ReasonUpgradeInProgress:
		return "An upgrade is already in progress on the CAN bus"
	}
	return fmt.Sprintf("Unknown failure - %s", r)
}

// StatusUpdate - snapshot of an upgrade emitted on every state change
type StatusUpdate struct {
	State string
	// Serial is only valid if SerialKnown is set
	Serial      common.DeviceIdentity
	SerialKnown bool
	Failure     Reason
	// Progress in percent of the image bytes sent
	Progress float64
}

// UpgradeError is returned when an upgrade ends in UpgradeStFailure
type UpgradeError struct {
	Reason Reason
	// State the upgrade was in when it failed
	State  string
	Serial string
}

func (e *UpgradeError) Error() string {
	if e.Serial == "" {
		return fmt.Sprintf("upgrade failed in %s: %s", e.State, e.Reason.Description())
	}
	return fmt.Sprintf("upgrade of %s failed in %s: %s", e.Serial, e.State, e.Reason.Description())
}

// ErrAbandoned is returned when the upgrade was cancelled before reaching a terminal state
var ErrAbandoned = errors.New("upgrade abandoned")
