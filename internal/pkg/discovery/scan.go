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

package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/opencord/voltha-lib-go/v7/pkg/log"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/canbus"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/frame"
)

// Scan passively records the devices announcing themselves during aDuration and never sends anything.
// aOnNew, if given, is called once for every newly seen device.
func (l *Listener) Scan(ctx context.Context, aTransport canbus.Transport, aDuration time.Duration,
	aOnNew func(Announcement)) ([]Announcement, error) {
	logger.Infow(ctx, "listening for bootloader announcements", log.Fields{"duration": aDuration})
	deadline := time.Now().Add(aDuration)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return l.Seen(), nil
		}
		rxFrame, err := aTransport.Receive(ctx, remaining)
		if errors.Is(err, canbus.ErrTimeout) {
			return l.Seen(), nil
		}
		if err != nil {
			return l.Seen(), err
		}
		if rxFrame.ID != common.DeviceCanID {
			continue
		}
		deviceFrame, err := frame.DecodeDeviceFrame(rxFrame.Payload())
		if err != nil || deviceFrame.Kind != frame.DevHello {
			continue
		}
		_, known := l.seen.Get(deviceFrame.Serial)
		l.Observe(ctx, deviceFrame)
		if !known && aOnNew != nil {
			if value, ok := l.seen.Get(deviceFrame.Serial); ok {
				aOnNew(*value.(*Announcement))
			}
		}
	}
}
