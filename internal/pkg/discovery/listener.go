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
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/frame"
)

// Announcement - what is known about a device that sent Hello frames
type Announcement struct {
	Serial    common.DeviceIdentity
	Major     byte
	Minor     byte
	FirstSeen time.Time
	LastSeen  time.Time
	Count     int
}

// Listener decides which announcing device gets upgraded and remembers every device seen.
// Without target any device is accepted (recovery mode).
type Listener struct {
	target *common.DeviceIdentity
	seen   *ordered_map.OrderedMap
	now    func() time.Time
}

// NewListener returns a listener accepting only aTarget, or any device if aTarget is nil
func NewListener(aTarget *common.DeviceIdentity) *Listener {
	l := &Listener{
		seen: ordered_map.NewOrderedMap(),
		now:  time.Now,
	}
	if aTarget != nil {
		target := *aTarget
		l.target = &target
	}
	return l
}

// Recovery returns true if any announcing device is accepted
func (l *Listener) Recovery() bool {
	return l.target == nil
}

// Target returns the serial the listener waits for, ok is false in recovery mode
func (l *Listener) Target() (common.DeviceIdentity, bool) {
	if l.target == nil {
		return 0, false
	}
	return *l.target, true
}

// Accepts reports whether aFrame is a Hello of a device to be upgraded, it does not record anything
func (l *Listener) Accepts(aFrame frame.DeviceFrame) (common.DeviceIdentity, bool) {
	if !aFrame.SupportedVersion() {
		return 0, false
	}
	if l.target != nil && *l.target != aFrame.Serial {
		return 0, false
	}
	return aFrame.Serial, true
}

// Observe records a Hello frame, other frames are ignored
func (l *Listener) Observe(ctx context.Context, aFrame frame.DeviceFrame) {
	if aFrame.Kind != frame.DevHello {
		return
	}
	now := l.now()
	if value, ok := l.seen.Get(aFrame.Serial); ok {
		announcement := value.(*Announcement)
		announcement.LastSeen = now
		announcement.Count++
		announcement.Minor = aFrame.Minor
		return
	}
	l.seen.Set(aFrame.Serial, &Announcement{
		Serial:    aFrame.Serial,
		Major:     aFrame.Major,
		Minor:     aFrame.Minor,
		FirstSeen: now,
		LastSeen:  now,
		Count:     1,
	})
	logger.Debugw(ctx, "device announced", log.Fields{"serial": aFrame.Serial.String(),
		"minor": aFrame.Minor, "recovery": l.Recovery()})
}

// Seen returns every device recorded so far in the order of their first announcement
func (l *Listener) Seen() []Announcement {
	announcements := make([]Announcement, 0, l.seen.Len())
	iter := l.seen.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		announcements = append(announcements, *kv.Value.(*Announcement))
	}
	return announcements
}
