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
	"fmt"
	"sync"
	"time"

	"github.com/brutella/can"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
)

const cRxQueueDepth = 64

// SocketTransport - Transport on a Linux SocketCAN interface
type SocketTransport struct {
	ifName    string
	bus       *can.Bus
	rxFrames  chan Frame
	done      chan struct{}
	closeOnce sync.Once
	acceptIDs map[uint32]struct{}
}

// Open connects to the SocketCAN interface aIfName.
// If aAcceptIDs is given only frames with these identifiers are delivered by Receive.
func Open(ctx context.Context, aIfName string, aAcceptIDs ...uint32) (*SocketTransport, error) {
	bus, err := can.NewBusForInterfaceWithName(aIfName)
	if err != nil {
		logger.Errorw(ctx, "could not open CAN interface", log.Fields{"interface": aIfName, "error": err})
		return nil, fmt.Errorf("could not open CAN interface %s: %w", aIfName, err)
	}
	st := &SocketTransport{
		ifName:   aIfName,
		bus:      bus,
		rxFrames: make(chan Frame, cRxQueueDepth),
		done:     make(chan struct{}),
	}
	if len(aAcceptIDs) > 0 {
		st.acceptIDs = make(map[uint32]struct{}, len(aAcceptIDs))
		for _, id := range aAcceptIDs {
			st.acceptIDs[id] = struct{}{}
		}
	}
	bus.SubscribeFunc(st.handleFrame)
	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			select {
			case <-st.done:
			default:
				logger.Errorw(ctx, "CAN receive loop stopped", log.Fields{"interface": aIfName, "error": err})
			}
		}
	}()
	logger.Infow(ctx, "CAN interface opened", log.Fields{"interface": aIfName})
	return st, nil
}

func (st *SocketTransport) handleFrame(aFrame can.Frame) {
	if st.acceptIDs != nil {
		if _, ok := st.acceptIDs[aFrame.ID]; !ok {
			return
		}
	}
	rxFrame := Frame{ID: aFrame.ID, Length: aFrame.Length, Data: aFrame.Data}
	select {
	case st.rxFrames <- rxFrame:
	case <-st.done:
	default:
		logger.Warnw(context.Background(), "receive queue full, dropping frame",
			log.Fields{"interface": st.ifName, "id": fmt.Sprintf("0x%03x", aFrame.ID)})
	}
}

// Send publishes an 8 byte frame
func (st *SocketTransport) Send(ctx context.Context, aID uint32, aData [8]byte) error {
	select {
	case <-st.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := st.bus.Publish(can.Frame{ID: aID, Length: 8, Data: aData}); err != nil {
		return fmt.Errorf("could not send frame 0x%03x on %s: %w", aID, st.ifName, err)
	}
	return nil
}

// Receive waits for the next accepted frame
func (st *SocketTransport) Receive(ctx context.Context, aTimeout time.Duration) (Frame, error) {
	timer := time.NewTimer(aTimeout)
	defer timer.Stop()
	select {
	case rxFrame := <-st.rxFrames:
		return rxFrame, nil
	case <-timer.C:
		return Frame{}, ErrTimeout
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-st.done:
		return Frame{}, ErrClosed
	}
}

// Close stops the receive loop and releases the interface
func (st *SocketTransport) Close() error {
	var err error
	st.closeOnce.Do(func() {
		close(st.done)
		err = st.bus.Disconnect()
	})
	return err
}
