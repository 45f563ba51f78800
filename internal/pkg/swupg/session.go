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
	"context"
	"sync"

	"github.com/looplab/fsm"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/discovery"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/firmware"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/frame"
)

// Reaction - what the caller has to do after feeding a frame or a timeout into the Session
type Reaction struct {
	// Reply is sent on common.UpgraderCanID if set
	Reply *frame.ToolFrame
	// Update is set if the state changed
	Update *StatusUpdate
	// Ignored is set if the input had no effect, the response timeout keeps running
	Ignored bool
}

// Session implements the upgrade of one device, it owns the transfer position and never blocks
type Session struct {
	pUpgradeFsm  *common.UpgradeFsm
	pImage       *firmware.Segmented
	pListener    *discovery.Listener
	mutexSession sync.RWMutex
	cur          cursor
	serial       common.DeviceIdentity
	serialKnown  bool
	failure      Reason
	failedIn     string
	stateChanged bool
}

//NewSession is the constructor of a Session upgrading a device with aImage, the device is selected by aListener
func NewSession(ctx context.Context, aImage *firmware.Segmented, aListener *discovery.Listener) *Session {
	target := "any"
	if serial, ok := aListener.Target(); ok {
		target = serial.String()
	}
	instFsm := &Session{
		pUpgradeFsm: common.NewUpgradeFsm("UpgradeFsm", target),
		pImage:      aImage,
		pListener:   aListener,
	}
	instFsm.pUpgradeFsm.PFsm = fsm.NewFSM(
		UpgradeStStart,
		fsm.Events{
			{Name: UpgradeEvDeviceFound, Src: []string{UpgradeStStart}, Dst: UpgradeStHeader},
			{Name: UpgradeEvUpload, Src: []string{UpgradeStHeader}, Dst: UpgradeStUpload},
			{Name: UpgradeEvPageSent, Src: []string{UpgradeStUpload}, Dst: UpgradeStCheckCrc},
			{Name: UpgradeEvNextPage, Src: []string{UpgradeStCheckCrc}, Dst: UpgradeStUpload},
			//an image without pages goes straight from the header to the final handshake
			{Name: UpgradeEvWaitForDone, Src: []string{UpgradeStHeader, UpgradeStCheckCrc}, Dst: UpgradeStWaitForDone},
			{Name: UpgradeEvDone, Src: []string{UpgradeStWaitForDone}, Dst: UpgradeStComplete},
			{Name: UpgradeEvFail, Src: []string{UpgradeStStart, UpgradeStHeader, UpgradeStUpload,
				UpgradeStCheckCrc, UpgradeStWaitForDone}, Dst: UpgradeStFailure},
		},
		fsm.Callbacks{
			"enter_state":                func(e *fsm.Event) { instFsm.enterState(ctx, e) },
			"enter_" + UpgradeStHeader:   func(e *fsm.Event) { instFsm.enterHeader(ctx, e) },
			"enter_" + UpgradeStComplete: func(e *fsm.Event) { instFsm.enterComplete(ctx, e) },
			"enter_" + UpgradeStFailure:  func(e *fsm.Event) { instFsm.enterFailure(ctx, e) },
		},
	)
	logger.Debugw(ctx, "UpgradeFsm created", log.Fields{"target": target,
		"pages": aImage.PageCount(), "image-length": aImage.Len()})
	return instFsm
}

// HandleFrame processes one payload received on common.DeviceCanID
func (oFsm *Session) HandleFrame(ctx context.Context, aPayload []byte) Reaction {
	deviceFrame, err := frame.DecodeDeviceFrame(aPayload)
	oFsm.mutexSession.Lock()
	defer oFsm.mutexSession.Unlock()
	if err != nil {
		logger.Warnw(ctx, "UpgradeFsm received undecodable frame", log.Fields{
			"target": oFsm.pUpgradeFsm.Target(), "state": oFsm.pUpgradeFsm.PFsm.Current(), "error": err})
	} else {
		oFsm.pListener.Observe(ctx, deviceFrame)
	}
	next := decide(oFsm.pUpgradeFsm.PFsm.Current(), oFsm.cur, oFsm.pImage, oFsm.pListener, deviceFrame, err)
	return oFsm.apply(ctx, next)
}

// HandleTimeout processes the expiry of the response timeout
func (oFsm *Session) HandleTimeout(ctx context.Context) Reaction {
	oFsm.mutexSession.Lock()
	defer oFsm.mutexSession.Unlock()
	next := decideTimeout(oFsm.pUpgradeFsm.PFsm.Current(), oFsm.cur)
	if !next.ignored {
		logger.Warnw(ctx, "UpgradeFsm response timeout", log.Fields{
			"target": oFsm.pUpgradeFsm.Target(), "state": oFsm.pUpgradeFsm.PFsm.Current()})
	}
	return oFsm.apply(ctx, next)
}

// apply takes over the decision, mutexSession must be locked
func (oFsm *Session) apply(ctx context.Context, aNext decision) Reaction {
	if aNext.ignored {
		return Reaction{Ignored: true}
	}
	oFsm.cur = aNext.cursor
	if aNext.serial != nil {
		oFsm.serial = *aNext.serial
		oFsm.serialKnown = true
		oFsm.pUpgradeFsm.SetTarget(oFsm.serial.String())
	}
	if aNext.failure != ReasonNone {
		oFsm.failure = aNext.failure
		oFsm.failedIn = oFsm.pUpgradeFsm.PFsm.Current()
	}
	oFsm.stateChanged = false
	if aNext.event != "" {
		if err := oFsm.pUpgradeFsm.PFsm.Event(aNext.event); err != nil {
			logger.Errorw(ctx, "UpgradeFsm can't handle event", log.Fields{"target": oFsm.pUpgradeFsm.Target(),
				"event": aNext.event, "state": oFsm.pUpgradeFsm.PFsm.Current(), "error": err})
		}
	}
	reaction := Reaction{Reply: aNext.reply}
	if oFsm.stateChanged {
		update := oFsm.statusLocked()
		reaction.Update = &update
	}
	return reaction
}

func (oFsm *Session) enterState(ctx context.Context, e *fsm.Event) {
	oFsm.pUpgradeFsm.LogFsmStateChange(ctx, e)
	oFsm.stateChanged = true
}

func (oFsm *Session) enterHeader(ctx context.Context, e *fsm.Event) {
	logger.Infow(ctx, "UpgradeFsm device selected", log.Fields{"serial": oFsm.serial.String(),
		"recovery": oFsm.pListener.Recovery(), "pages": oFsm.pImage.PageCount()})
}

func (oFsm *Session) enterComplete(ctx context.Context, e *fsm.Event) {
	logger.Infow(ctx, "UpgradeFsm upgrade complete", log.Fields{"serial": oFsm.serial.String(),
		"pages": oFsm.pImage.PageCount(), "bytes": oFsm.pImage.Len()})
}

func (oFsm *Session) enterFailure(ctx context.Context, e *fsm.Event) {
	logger.Errorw(ctx, "UpgradeFsm upgrade failed", log.Fields{"target": oFsm.pUpgradeFsm.Target(),
		"in-state": e.Src, "reason": oFsm.failure.String(), "page": oFsm.cur.page, "offset": oFsm.cur.offset})
}

// Status returns a snapshot of the session
func (oFsm *Session) Status() StatusUpdate {
	oFsm.mutexSession.RLock()
	defer oFsm.mutexSession.RUnlock()
	return oFsm.statusLocked()
}

func (oFsm *Session) statusLocked() StatusUpdate {
	state := oFsm.pUpgradeFsm.PFsm.Current()
	return StatusUpdate{
		State:       state,
		Serial:      oFsm.serial,
		SerialKnown: oFsm.serialKnown,
		Failure:     oFsm.failure,
		Progress:    progress(state, oFsm.cur, oFsm.pImage.Len()),
	}
}

// State returns the current FSM state
func (oFsm *Session) State() string {
	oFsm.mutexSession.RLock()
	defer oFsm.mutexSession.RUnlock()
	return oFsm.pUpgradeFsm.PFsm.Current()
}

// Terminated returns true once the session reached UpgradeStComplete or UpgradeStFailure
func (oFsm *Session) Terminated() bool {
	return IsTerminal(oFsm.State())
}

// Err returns the failure as *UpgradeError, nil unless the session is in UpgradeStFailure
func (oFsm *Session) Err() error {
	oFsm.mutexSession.RLock()
	defer oFsm.mutexSession.RUnlock()
	if oFsm.pUpgradeFsm.PFsm.Current() != UpgradeStFailure {
		return nil
	}
	upgradeErr := &UpgradeError{Reason: oFsm.failure, State: oFsm.failedIn}
	if oFsm.serialKnown {
		upgradeErr.Serial = oFsm.serial.String()
	}
	return upgradeErr
}

// Seen returns the devices that announced themselves during the session
func (oFsm *Session) Seen() []discovery.Announcement {
	oFsm.mutexSession.RLock()
	defer oFsm.mutexSession.RUnlock()
	return oFsm.pListener.Seen()
}
