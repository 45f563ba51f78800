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
	"sync"
	"time"
)

type pipeLink struct {
	closed    chan struct{}
	closeOnce sync.Once
}

// PipeEnd - one side of an in-memory CAN link, see Pipe
type PipeEnd struct {
	link *pipeLink
	rx   <-chan Frame
	tx   chan<- Frame
}

// Pipe returns two connected transports, what one end sends the other receives.
// Each direction buffers aDepth frames before Send blocks.
func Pipe(aDepth int) (*PipeEnd, *PipeEnd) {
	link := &pipeLink{closed: make(chan struct{})}
	aToB := make(chan Frame, aDepth)
	bToA := make(chan Frame, aDepth)
	return &PipeEnd{link: link, rx: bToA, tx: aToB}, &PipeEnd{link: link, rx: aToB, tx: bToA}
}

// Send delivers the frame to the other end
func (pe *PipeEnd) Send(ctx context.Context, aID uint32, aData [8]byte) error {
	return pe.deliver(ctx, Frame{ID: aID, Length: 8, Data: aData})
}

// SendPayload delivers a frame with a payload of up to 8 bytes
func (pe *PipeEnd) SendPayload(ctx context.Context, aID uint32, aPayload []byte) error {
	txFrame := Frame{ID: aID}
	txFrame.Length = uint8(copy(txFrame.Data[:], aPayload))
	return pe.deliver(ctx, txFrame)
}

func (pe *PipeEnd) deliver(ctx context.Context, aFrame Frame) error {
	select {
	case <-pe.link.closed:
		return ErrClosed
	default:
	}
	select {
	case pe.tx <- aFrame:
		return nil
	case <-pe.link.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next frame sent by the other end
func (pe *PipeEnd) Receive(ctx context.Context, aTimeout time.Duration) (Frame, error) {
	timer := time.NewTimer(aTimeout)
	defer timer.Stop()
	select {
	case rxFrame := <-pe.rx:
		return rxFrame, nil
	case <-timer.C:
		return Frame{}, ErrTimeout
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-pe.link.closed:
		return Frame{}, ErrClosed
	}
}

// Close shuts down both ends
func (pe *PipeEnd) Close() error {
	pe.link.closeOnce.Do(func() { close(pe.link.closed) })
	return nil
}
