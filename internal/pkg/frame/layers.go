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

package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

// layer types of the upgrade protocol, numbers taken from the range gopacket leaves to applications
var (
	LayerTypeDeviceFrame = gopacket.RegisterLayerType(1710,
		gopacket.LayerTypeMetadata{Name: "BootloaderDeviceFrame", Decoder: gopacket.DecodeFunc(decodeDeviceLayer)})
	LayerTypeToolFrame = gopacket.RegisterLayerType(1711,
		gopacket.LayerTypeMetadata{Name: "BootloaderToolFrame", Decoder: gopacket.DecodeFunc(decodeToolLayer)})
)

// DeviceLayer - gopacket view of a device frame
type DeviceLayer struct {
	layers.BaseLayer
	DeviceFrame
}

// LayerType returns LayerTypeDeviceFrame
func (l *DeviceLayer) LayerType() gopacket.LayerType { return LayerTypeDeviceFrame }

// CanDecode returns the set of layer types this layer can decode
func (l *DeviceLayer) CanDecode() gopacket.LayerClass { return LayerTypeDeviceFrame }

// NextLayerType returns LayerTypeZero, device frames carry no inner layer
func (l *DeviceLayer) NextLayerType() gopacket.LayerType { return gopacket.LayerTypeZero }

// DecodeFromBytes decodes the given bytes into this layer
func (l *DeviceLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 1 {
		df.SetTruncated()
		return newFrameError(data, "empty payload")
	}
	l.DeviceFrame = DeviceFrame{}
	hdrLen := 1
	switch data[0] {
	case TagHello:
		if len(data) != common.FrameLength {
			if len(data) < common.FrameLength {
				df.SetTruncated()
			}
			return newFrameError(data, fmt.Sprintf("hello needs %d bytes, got %d", common.FrameLength, len(data)))
		}
		// the minor version is checked by whoever acts on the Hello, other devices may run any revision
		l.Kind = DevHello
		l.Major = data[0]
		l.Minor = data[1]
		// bytes 2 and 3 are reserved
		l.Serial = common.DeviceIdentity(binary.LittleEndian.Uint32(data[4:8]))
		hdrLen = common.FrameLength
	case TagStart:
		l.Kind = DevStart
	case TagPage:
		l.Kind = DevPageTag
	case TagCrc:
		l.Kind = DevCrcRequest
	case TagDone:
		l.Kind = DevDone
	case TagError:
		l.Kind = DevError
	default:
		return newFrameError(data, fmt.Sprintf("unknown tag 0x%02x", data[0]))
	}
	// extra bytes behind a tag hint at a protocol revision this tool does not know
	if len(data) != hdrLen {
		return newFrameError(data, fmt.Sprintf("tag %q carries %d unexpected bytes", data[0], len(data)-hdrLen))
	}
	l.BaseLayer = layers.BaseLayer{Contents: data[:hdrLen], Payload: data[hdrLen:]}
	return nil
}

// SerializeTo writes the device frame, only used to simulate devices
func (l *DeviceLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	var tag byte
	switch l.Kind {
	case DevHello:
		bytes, err := b.PrependBytes(common.FrameLength)
		if err != nil {
			return err
		}
		major := l.Major
		if major == 0 {
			major = TagHello
		}
		bytes[0] = major
		bytes[1] = l.Minor
		bytes[2] = 0
		bytes[3] = 0
		binary.LittleEndian.PutUint32(bytes[4:], uint32(l.Serial))
		return nil
	case DevStart:
		tag = TagStart
	case DevPageTag, DevPageRequest:
		tag = TagPage
	case DevCrcRequest:
		tag = TagCrc
	case DevDone:
		tag = TagDone
	case DevError:
		tag = TagError
	default:
		return fmt.Errorf("cannot serialize device frame of kind %s", l.Kind)
	}
	bytes, err := b.PrependBytes(1)
	if err != nil {
		return err
	}
	bytes[0] = tag
	return nil
}

func decodeDeviceLayer(data []byte, p gopacket.PacketBuilder) error {
	l := &DeviceLayer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return nil
}

// ToolLayer - gopacket view of a frame sent towards the device
type ToolLayer struct {
	layers.BaseLayer
	ToolFrame
}

// LayerType returns LayerTypeToolFrame
func (l *ToolLayer) LayerType() gopacket.LayerType { return LayerTypeToolFrame }

// CanDecode returns the set of layer types this layer can decode
func (l *ToolLayer) CanDecode() gopacket.LayerClass { return LayerTypeToolFrame }

// NextLayerType returns LayerTypeZero, tool frames carry no inner layer
func (l *ToolLayer) NextLayerType() gopacket.LayerType { return gopacket.LayerTypeZero }

// DecodeFromBytes interprets data according to the preset Kind, the payload alone does not tell
// a DeviceIdentifier from a CrcResponse. A layer without Kind is decoded as raw PageResponse.
func (l *ToolLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < common.FrameLength {
		df.SetTruncated()
		return fmt.Errorf("tool frame needs %d bytes, got %d", common.FrameLength, len(data))
	}
	kind := l.Kind
	if kind == 0 {
		kind = ToolPageResponse
	}
	l.ToolFrame = ToolFrame{Kind: kind}
	switch kind {
	case ToolDeviceIdentifier:
		l.Serial = common.DeviceIdentity(binary.LittleEndian.Uint32(data[0:4]))
	case ToolStartResponse:
		l.PageCount = data[0]
	case ToolPageResponse:
		copy(l.Data[:], data[:common.ChunkSize])
	case ToolCrcResponse:
		l.Crc = binary.LittleEndian.Uint32(data[0:4])
	default:
		return fmt.Errorf("unknown tool frame kind %s", kind)
	}
	l.BaseLayer = layers.BaseLayer{Contents: data[:common.FrameLength], Payload: data[common.FrameLength:]}
	return nil
}

// SerializeTo writes the tool frame as a zero padded 8 byte payload
func (l *ToolLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(common.FrameLength)
	if err != nil {
		return err
	}
	for i := range bytes {
		bytes[i] = 0
	}
	switch l.Kind {
	case ToolDeviceIdentifier:
		binary.LittleEndian.PutUint32(bytes[0:4], uint32(l.Serial))
	case ToolStartResponse:
		bytes[0] = l.PageCount
	case ToolPageResponse:
		copy(bytes, l.Data[:])
	case ToolCrcResponse:
		binary.LittleEndian.PutUint32(bytes[0:4], l.Crc)
	default:
		return fmt.Errorf("cannot serialize tool frame of kind %s", l.Kind)
	}
	return nil
}

func decodeToolLayer(data []byte, p gopacket.PacketBuilder) error {
	l := &ToolLayer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return nil
}
