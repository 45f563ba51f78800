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
	"context"

	"github.com/looplab/fsm"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
)

//NewUpgradeFsm - FSM details including name and targeted device
func NewUpgradeFsm(aName string, aTarget string) *UpgradeFsm {
	aFsm := &UpgradeFsm{
		fsmName: aName,
		target:  aTarget,
	}
	return aFsm
}

// SetTarget records the device the FSM is working on once it is known
func (oo *UpgradeFsm) SetTarget(aTarget string) {
	oo.target = aTarget
}

// Target returns the device the FSM is working on
func (oo *UpgradeFsm) Target() string {
	return oo.target
}

// LogFsmStateChange logs FSM state changes
func (oo *UpgradeFsm) LogFsmStateChange(ctx context.Context, e *fsm.Event) {
	logger.Debugw(ctx, "FSM state change", log.Fields{"target": oo.target, "FSM name": oo.fsmName,
		"event name": string(e.Event), "src state": string(e.Src), "dst state": string(e.Dst)})
}
