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

//Package common provides global definitions
package common

import (
	"fmt"
	"strconv"

	"github.com/looplab/fsm"
)

// CAN identifiers used by the bootloader upgrade protocol
const (
	// DeviceCanID is the identifier of every frame a device in bootloader mode sends
	DeviceCanID uint32 = 0x7DE
	// UpgraderCanID is the identifier of every frame sent towards the device
	UpgraderCanID uint32 = 0x7DD
)

// firmware geometry as understood by the bootloader
const (
	// FrameLength is the payload length of every frame sent towards the device
	FrameLength = 8
	// PageSize is the flash page size the bootloader programs at once
	PageSize = 1024
	// ChunkSize is the number of image bytes carried by one PageResponse
	ChunkSize = FrameLength
	// ChunksPerPage is the number of PageResponses needed to fill one page
	ChunksPerPage = PageSize / ChunkSize
	// MaxPages is the largest page count the StartResponse frame can carry
	MaxPages = 255
	// MaxImageSize is the largest firmware image that can be uploaded
	MaxImageSize = MaxPages * PageSize
)

// DeviceIdentity - serial number a device announces in its Hello frame
type DeviceIdentity uint32

// String returns the serial the way operators see it: 8 lower case hex digits
func (d DeviceIdentity) String() string {
	return fmt.Sprintf("%08x", uint32(d))
}

// ParseDeviceIdentity parses a serial given as exactly 8 hex digits
func ParseDeviceIdentity(aSerial string) (DeviceIdentity, error) {
	if len(aSerial) != 8 {
		return 0, fmt.Errorf("serial %q must be exactly 8 hex digits", aSerial)
	}
	val, err := strconv.ParseUint(aSerial, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("serial %q is not a hex number: %w", aSerial, err)
	}
	return DeviceIdentity(val), nil
}

// UpgradeFsm - FSM details of one upgrade run including the targeted device
type UpgradeFsm struct {
	fsmName string
	target  string
	PFsm    *fsm.FSM
}

//CErrWaitAborted - error string used when waiting for a device response was cancelled
const CErrWaitAborted = "waitResponse aborted"
