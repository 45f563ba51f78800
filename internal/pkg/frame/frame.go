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

//Package frame encodes and decodes the payloads exchanged with a device in bootloader mode
package frame

import (
	"errors"
	"fmt"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

// tags carried in the first payload byte of a device frame
const (
	TagHello    byte = '3'
	TagStart    byte = 'S'
	TagPage     byte = 'P'
	TagCrc      byte = 'C'
	TagDone     byte = 'D'
	TagError    byte = 'E'
	minorLegacy byte = 0x00
	minorV1     byte = '1'
)

// ErrUnrecognized is matched by every decode failure
var ErrUnrecognized = errors.New("unrecognized device frame")

// FrameError - a device payload that could not be decoded
type FrameError struct {
	Payload []byte
	Reason  string
}

func newFrameError(aPayload []byte, aReason string) *FrameError {
	return &FrameError{Payload: append([]byte(nil), aPayload...), Reason: aReason}
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s [% x]: %s", ErrUnrecognized.Error(), e.Payload, e.Reason)
}

// Unwrap makes errors.Is(err, ErrUnrecognized) hold
func (e *FrameError) Unwrap() error {
	return ErrUnrecognized
}

// DeviceKind - classification of a device frame
type DeviceKind uint8

const (
	// DevUnknown is never produced by a successful decode
	DevUnknown DeviceKind = iota
	// DevHello - device announces itself after reset
	DevHello
	// DevStart - device asks for the page count
	DevStart
	// DevPageTag - 'P' frame whose meaning depends on the transfer position, see Resolve
	DevPageTag
	// DevPageRequest - device asks for the next 8 bytes of the current page
	DevPageRequest
	// DevCrcRequest - device asks for the checksum of the page just completed
	DevCrcRequest
	// DevDone - device flashed every page and is about to boot
	DevDone
	// DevError - device rejected the last step
	DevError
)

func (k DeviceKind) String() string {
	names := [...]string{
		"Unknown",
		"Hello",
		"Start",
		"PageTag",
		"PageRequest",
		"CrcRequest",
		"Done",
		"Error",
	}
	if int(k) >= len(names) {
		return fmt.Sprintf("DeviceKind(%d)", uint8(k))
	}
	return names[k]
}

// DeviceFrame - decoded content of a frame sent by the device
type DeviceFrame struct {
	Kind DeviceKind
	// Major and Minor are only meaningful for Hello frames
	Major  byte
	Minor  byte
	Serial common.DeviceIdentity
}

// Resolve replaces the provisional page tag by what it means at the current transfer position:
// before the page is complete it requests data, once complete and before the CRC was sent it
// requests the checksum, after the CRC was sent it accepts the page and requests the next one.
func Resolve(aFrame DeviceFrame, aOffset int, aCrcSent bool) DeviceFrame {
	if aFrame.Kind != DevPageTag {
		return aFrame
	}
	if aOffset >= common.PageSize && !aCrcSent {
		aFrame.Kind = DevCrcRequest
	} else {
		aFrame.Kind = DevPageRequest
	}
	return aFrame
}

// SupportedVersion is true for a Hello of a bootloader revision this tool can upgrade
func (f DeviceFrame) SupportedVersion() bool {
	return f.Kind == DevHello && f.Major == TagHello && (f.Minor == minorLegacy || f.Minor == minorV1)
}

// ToolKind - classification of a frame sent towards the device
type ToolKind uint8

const (
	// ToolDeviceIdentifier echoes the serial of the device selected for upgrade
	ToolDeviceIdentifier ToolKind = iota + 1
	// ToolStartResponse carries the number of pages to be flashed
	ToolStartResponse
	// ToolPageResponse carries 8 bytes of image data
	ToolPageResponse
	// ToolCrcResponse carries the checksum of the page just completed
	ToolCrcResponse
)

func (k ToolKind) String() string {
	switch k {
	case ToolDeviceIdentifier:
		return "DeviceIdentifier"
	case ToolStartResponse:
		return "StartResponse"
	case ToolPageResponse:
		return "PageResponse"
	case ToolCrcResponse:
		return "CrcResponse"
	}
	return fmt.Sprintf("ToolKind(%d)", uint8(k))
}

// ToolFrame - content of a frame sent towards the device, only the field matching Kind is used
type ToolFrame struct {
	Kind      ToolKind
	Serial    common.DeviceIdentity
	PageCount uint8
	Data      [common.ChunkSize]byte
	Crc       uint32
}

// NewDeviceIdentifier returns the reply selecting the device with the given serial
func NewDeviceIdentifier(aSerial common.DeviceIdentity) ToolFrame {
	return ToolFrame{Kind: ToolDeviceIdentifier, Serial: aSerial}
}

// NewStartResponse returns the reply announcing the page count
func NewStartResponse(aPageCount uint8) ToolFrame {
	return ToolFrame{Kind: ToolStartResponse, PageCount: aPageCount}
}

// NewPageResponse returns the reply carrying one chunk of image data
func NewPageResponse(aData [common.ChunkSize]byte) ToolFrame {
	return ToolFrame{Kind: ToolPageResponse, Data: aData}
}

// NewCrcResponse returns the reply carrying a page checksum
func NewCrcResponse(aCrc uint32) ToolFrame {
	return ToolFrame{Kind: ToolCrcResponse, Crc: aCrc}
}
