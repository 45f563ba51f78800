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
	"errors"
	"fmt"
	"time"

	"github.com/opencord/voltha-lib-go/v7/pkg/log"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/canbus"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/frame"
)

// StatusCallback receives every StatusUpdate of a running upgrade
type StatusCallback func(StatusUpdate)

type runnerConfig struct {
	discoveryTimeout time.Duration
	responseTimeout  time.Duration
	statusCallback   StatusCallback
}

// Option is a functional option for configuring the Runner
type Option func(*runnerConfig)

// WithDiscoveryTimeout sets how long to wait for the device to announce itself
func WithDiscoveryTimeout(aTimeout time.Duration) Option {
	return func(c *runnerConfig) {
		if aTimeout > 0 {
			c.discoveryTimeout = aTimeout
		}
	}
}

// WithResponseTimeout sets how long the selected device may stay silent
func WithResponseTimeout(aTimeout time.Duration) Option {
	return func(c *runnerConfig) {
		if aTimeout > 0 {
			c.responseTimeout = aTimeout
		}
	}
}

// WithStatusCallback registers a receiver for status updates, it is called on the runner goroutine
func WithStatusCallback(aCallback StatusCallback) Option {
	return func(c *runnerConfig) {
		c.statusCallback = aCallback
	}
}

// Result - summary of a finished upgrade
type Result struct {
	Status  StatusUpdate
	Pages   int
	Bytes   int
	Elapsed time.Duration
	// DeviceAtRisk is set if the device was left in the middle of an upgrade and may not boot
	DeviceAtRisk bool
}

// Runner drives a Session over a CAN transport until it terminates
type Runner struct {
	transport canbus.Transport
	session   *Session
	config    runnerConfig
}

// NewRunner returns a runner for aSession talking through aTransport
func NewRunner(aTransport canbus.Transport, aSession *Session, opts ...Option) *Runner {
	r := &Runner{
		transport: aTransport,
		session:   aSession,
		config: runnerConfig{
			discoveryTimeout: cDefaultDiscoveryTimeout,
			responseTimeout:  cDefaultResponseTimeout,
		},
	}
	for _, opt := range opts {
		opt(&r.config)
	}
	return r
}

func (r *Runner) timeoutFor(aState string) time.Duration {
	if aState == UpgradeStStart {
		return r.config.discoveryTimeout
	}
	return r.config.responseTimeout
}

func (r *Runner) notify(aUpdate StatusUpdate) {
	if r.config.statusCallback != nil {
		r.config.statusCallback(aUpdate)
	}
}

// Run performs the upgrade. It returns nil once the device reported completion,
// an *UpgradeError if the upgrade failed, ErrAbandoned if ctx was cancelled first.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	r.notify(r.session.Status())
	deadline := time.Now().Add(r.timeoutFor(r.session.State()))

	for !r.session.Terminated() {
		var reaction Reaction
		remaining := time.Until(deadline)
		if remaining <= 0 {
			reaction = r.session.HandleTimeout(ctx)
		} else {
			rxFrame, err := r.transport.Receive(ctx, remaining)
			switch {
			case errors.Is(err, canbus.ErrTimeout):
				reaction = r.session.HandleTimeout(ctx)
			case err != nil:
				return r.abandon(ctx, started, err)
			case rxFrame.ID != common.DeviceCanID:
				continue
			default:
				reaction = r.session.HandleFrame(ctx, rxFrame.Payload())
			}
		}

		if reaction.Reply != nil {
			if err := r.send(ctx, *reaction.Reply); err != nil {
				return r.abandon(ctx, started, err)
			}
		}
		if reaction.Update != nil {
			r.notify(*reaction.Update)
		}
		if !reaction.Ignored {
			deadline = time.Now().Add(r.timeoutFor(r.session.State()))
		}
	}

	result := r.result(started)
	if err := r.session.Err(); err != nil {
		result.DeviceAtRisk = r.session.Status().SerialKnown
		return result, err
	}
	logger.Infow(ctx, "upgrade finished", log.Fields{"serial": result.Status.Serial.String(),
		"pages": result.Pages, "elapsed": result.Elapsed.String()})
	return result, nil
}

func (r *Runner) send(ctx context.Context, aReply frame.ToolFrame) error {
	payload, err := frame.EncodeToolFrame(aReply)
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", aReply.Kind, err)
	}
	if err := r.transport.Send(ctx, common.UpgraderCanID, payload); err != nil {
		return fmt.Errorf("could not send %s: %w", aReply.Kind, err)
	}
	return nil
}

func (r *Runner) result(aStarted time.Time) Result {
	status := r.session.Status()
	return Result{
		Status:  status,
		Pages:   r.session.pImage.PageCount(),
		Bytes:   r.session.pImage.Len(),
		Elapsed: time.Since(aStarted),
	}
}

// abandon ends a run that could not reach a terminal state
func (r *Runner) abandon(ctx context.Context, aStarted time.Time, aCause error) (Result, error) {
	result := r.result(aStarted)
	result.DeviceAtRisk = result.Status.SerialKnown
	if result.DeviceAtRisk {
		logger.Warnw(ctx, "upgrade abandoned before completion, the device may not boot until upgraded again",
			log.Fields{"serial": result.Status.Serial.String(), "state": result.Status.State, "cause": aCause})
	} else {
		logger.Warnw(ctx, "upgrade abandoned before a device was selected", log.Fields{"cause": aCause})
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("%w in %s: %s", ErrAbandoned, result.Status.State, common.CErrWaitAborted)
	}
	return result, fmt.Errorf("%w in %s: %w", ErrAbandoned, result.Status.State, aCause)
}
