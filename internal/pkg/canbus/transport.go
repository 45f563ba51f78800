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

package canbus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Receive when no frame arrived in time
	ErrTimeout = errors.New("no CAN frame received in time")
	// ErrClosed is returned once the transport was closed
	ErrClosed = errors.New("CAN transport closed")
)

// Frame - classic CAN frame with standard identifier
type Frame struct {
	ID     uint32
	Length uint8
	Data   [8]byte
}

// Payload returns the valid data bytes of the frame
func (f Frame) Payload() []byte {
	length := int(f.Length)
	if length > len(f.Data) {
		length = len(f.Data)
	}
	return f.Data[:length]
}

// Transport - the CAN access used by the upgrader, one instance per interface
type Transport interface {
	// Send queues an 8 byte frame with the given identifier
	Send(ctx context.Context, aID uint32, aData [8]byte) error
	// Receive returns the next frame, ErrTimeout if none arrives within aTimeout
	Receive(ctx context.Context, aTimeout time.Duration) (Frame, error)
	Close() error
}
