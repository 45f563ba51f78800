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

package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/config"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/discovery"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/firmware"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/swupg"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOk},
		{"usage", fmt.Errorf("%w: a command is required", config.ErrUsage), exitSetupNg},
		{"upgrade failed", &swupg.UpgradeError{Reason: swupg.ReasonCrcMismatch, State: swupg.UpgradeStCheckCrc}, exitFailed},
		{"wrapped upgrade failure", fmt.Errorf("run: %w", &swupg.UpgradeError{Reason: swupg.ReasonTimeout}), exitFailed},
		{"abandoned", fmt.Errorf("%w in %s: %s", swupg.ErrAbandoned, swupg.UpgradeStUpload, common.CErrWaitAborted), exitFailed},
		{"setup", errors.New("no such interface"), exitSetupNg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestPageTable(t *testing.T) {
	raw := make([]byte, common.PageSize+1)
	raw[0] = 0xA5
	image, err := firmware.Segment(raw)
	require.NoError(t, err)

	data := pageTable(image)
	require.Len(t, data, 3)
	assert.Equal(t, []string{"0", "0x000000", "f1b78ce3"}, data[1])
	assert.Equal(t, "1", data[2][0])
	assert.Equal(t, "0x000400", data[2][1])
}

func TestAnnouncementTable(t *testing.T) {
	seen := time.Date(2026, 1, 2, 3, 4, 5, 6000000, time.UTC)
	data := announcementTable([]discovery.Announcement{
		{Serial: 0xDEADBEEF, Major: '3', Minor: 0, FirstSeen: seen, LastSeen: seen, Count: 1},
		{Serial: 0x12345678, Major: '3', Minor: '1', FirstSeen: seen, LastSeen: seen.Add(time.Second), Count: 3},
	})
	require.Len(t, data, 3)
	assert.Equal(t, []string{"deadbeef", "3", "1", "03:04:05.006", "03:04:05.006"}, data[1])
	assert.Equal(t, []string{"12345678", "3.1", "3", "03:04:05.006", "03:04:06.006"}, data[2])
}
