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
	"fmt"

	"github.com/google/gopacket"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

// DecodeDeviceFrame classifies a payload received on the device CAN identifier.
// Any failure is a *FrameError.
func DecodeDeviceFrame(aPayload []byte) (DeviceFrame, error) {
	packet := gopacket.NewPacket(aPayload, LayerTypeDeviceFrame, gopacket.NoCopy)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		if fErr, ok := errLayer.Error().(*FrameError); ok {
			return DeviceFrame{}, fErr
		}
		return DeviceFrame{}, newFrameError(aPayload, errLayer.Error().Error())
	}
	deviceLayer, ok := packet.Layer(LayerTypeDeviceFrame).(*DeviceLayer)
	if !ok {
		return DeviceFrame{}, newFrameError(aPayload, "no device layer decoded")
	}
	return deviceLayer.DeviceFrame, nil
}

// EncodeToolFrame renders a frame sent towards the device as an 8 byte zero padded payload
func EncodeToolFrame(aFrame ToolFrame) ([common.FrameLength]byte, error) {
	var out [common.FrameLength]byte
	buffer := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buffer, gopacket.SerializeOptions{}, &ToolLayer{ToolFrame: aFrame}); err != nil {
		return out, err
	}
	copy(out[:], buffer.Bytes())
	return out, nil
}

// EncodeDeviceFrame renders a device frame, used by device simulations
func EncodeDeviceFrame(aFrame DeviceFrame) ([]byte, error) {
	buffer := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buffer, gopacket.SerializeOptions{}, &DeviceLayer{DeviceFrame: aFrame}); err != nil {
		return nil, err
	}
	return append([]byte(nil), buffer.Bytes()...), nil
}

// DecodeToolFrame interprets a payload sent towards the device as the given kind
func DecodeToolFrame(aPayload []byte, aKind ToolKind) (ToolFrame, error) {
	l := &ToolLayer{ToolFrame: ToolFrame{Kind: aKind}}
	if err := l.DecodeFromBytes(aPayload, gopacket.NilDecodeFeedback); err != nil {
		return ToolFrame{}, fmt.Errorf("decode %s: %w", aKind, err)
	}
	return l.ToolFrame, nil
}
