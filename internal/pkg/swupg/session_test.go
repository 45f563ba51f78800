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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/crc"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/discovery"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/firmware"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/frame"
)

const testSerial = common.DeviceIdentity(0x12345678)

var (
	pageTag  = []byte{'P'}
	startTag = []byte{'S'}
	doneTag  = []byte{'D'}
	errorTag = []byte{'E'}
	crcTag   = []byte{'C'}
)

func testImage(aLen int) []byte {
	image := make([]byte, aLen)
	for i := range image {
		image[i] = byte(i*7 + 3)
	}
	return image
}

func helloPayload(aSerial common.DeviceIdentity) []byte {
	return []byte{'3', '1', 0, 0, byte(aSerial), byte(aSerial >> 8), byte(aSerial >> 16), byte(aSerial >> 24)}
}

func newTestSession(t *testing.T, aImage []byte, aTarget *common.DeviceIdentity) (*Session, *firmware.Segmented) {
	t.Helper()
	image, err := firmware.Segment(aImage)
	require.NoError(t, err)
	return NewSession(context.Background(), image, discovery.NewListener(aTarget)), image
}

func targeted() *common.DeviceIdentity {
	serial := testSerial
	return &serial
}

func encoded(t *testing.T, aReply *frame.ToolFrame) [8]byte {
	t.Helper()
	require.NotNil(t, aReply)
	payload, err := frame.EncodeToolFrame(*aReply)
	require.NoError(t, err)
	return payload
}

// startUpload brings a session to the first page request
func startUpload(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	reaction := s.HandleFrame(ctx, helloPayload(testSerial))
	require.NotNil(t, reaction.Reply)
	reaction = s.HandleFrame(ctx, startTag)
	require.NotNil(t, reaction.Reply)
}

func failureOf(t *testing.T, s *Session) *UpgradeError {
	t.Helper()
	require.Equal(t, UpgradeStFailure, s.State())
	var upgradeErr *UpgradeError
	require.True(t, errors.As(s.Err(), &upgradeErr))
	return upgradeErr
}

func TestSessionUploadsTwoPages(t *testing.T) {
	ctx := context.Background()
	raw := testImage(2000)
	s, image := newTestSession(t, raw, targeted())
	var updates []StatusUpdate
	record := func(r Reaction) Reaction {
		if r.Update != nil {
			updates = append(updates, *r.Update)
		}
		return r
	}

	reaction := record(s.HandleFrame(ctx, helloPayload(testSerial)))
	assert.Equal(t, [8]byte{0x78, 0x56, 0x34, 0x12}, encoded(t, reaction.Reply))
	assert.Equal(t, UpgradeStHeader, s.State())

	reaction = record(s.HandleFrame(ctx, startTag))
	assert.Equal(t, [8]byte{2}, encoded(t, reaction.Reply))
	assert.Equal(t, UpgradeStUpload, s.State())

	padded := make([]byte, 2*common.PageSize)
	copy(padded, raw)
	for page := 0; page < 2; page++ {
		for chunk := 0; chunk < common.ChunksPerPage; chunk++ {
			reaction = record(s.HandleFrame(ctx, pageTag))
			require.Equal(t, frame.ToolPageResponse, reaction.Reply.Kind)
			offset := page*common.PageSize + chunk*common.ChunkSize
			assert.Equal(t, padded[offset:offset+common.ChunkSize], reaction.Reply.Data[:],
				"page %d chunk %d", page, chunk)
		}
		assert.Equal(t, UpgradeStCheckCrc, s.State())

		reaction = record(s.HandleFrame(ctx, pageTag))
		pageData := image.Page(page)
		require.Equal(t, frame.ToolCrcResponse, reaction.Reply.Kind)
		assert.Equal(t, crc.Compute(&pageData), reaction.Reply.Crc)
	}
	assert.Equal(t, UpgradeStWaitForDone, s.State())

	reaction = record(s.HandleFrame(ctx, doneTag))
	assert.Nil(t, reaction.Reply)
	assert.Equal(t, UpgradeStComplete, s.State())
	assert.NoError(t, s.Err())

	states := make([]string, 0, len(updates))
	for _, update := range updates {
		states = append(states, update.State)
		assert.True(t, update.SerialKnown)
		assert.Equal(t, testSerial, update.Serial)
		assert.Equal(t, ReasonNone, update.Failure)
	}
	assert.Equal(t, []string{UpgradeStHeader, UpgradeStUpload, UpgradeStCheckCrc, UpgradeStUpload,
		UpgradeStCheckCrc, UpgradeStWaitForDone, UpgradeStComplete}, states)
	assert.InDelta(t, 51.2, updates[2].Progress, 0.001)
	assert.InDelta(t, 100, updates[4].Progress, 0.001)
	assert.Equal(t, float64(100), updates[6].Progress)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Progress, updates[i-1].Progress)
	}
}

func TestSessionExplicitCrcRequest(t *testing.T) {
	ctx := context.Background()
	s, image := newTestSession(t, testImage(common.PageSize), nil)
	startUpload(t, s)
	for chunk := 0; chunk < common.ChunksPerPage; chunk++ {
		s.HandleFrame(ctx, pageTag)
	}
	reaction := s.HandleFrame(ctx, crcTag)
	page := image.Page(0)
	assert.Equal(t, crc.Compute(&page), reaction.Reply.Crc)
	assert.Equal(t, UpgradeStWaitForDone, s.State())
	s.HandleFrame(ctx, doneTag)
	assert.Equal(t, UpgradeStComplete, s.State())
}

func TestSessionCrcRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, testImage(2000), targeted())
	startUpload(t, s)
	for chunk := 0; chunk < common.ChunksPerPage; chunk++ {
		s.HandleFrame(ctx, pageTag)
	}
	s.HandleFrame(ctx, pageTag)
	reaction := s.HandleFrame(ctx, errorTag)
	assert.Nil(t, reaction.Reply)
	require.NotNil(t, reaction.Update)
	assert.Equal(t, ReasonCrcMismatch, reaction.Update.Failure)

	upgradeErr := failureOf(t, s)
	assert.Equal(t, ReasonCrcMismatch, upgradeErr.Reason)
	assert.Equal(t, UpgradeStCheckCrc, upgradeErr.State)
	assert.Equal(t, testSerial.String(), upgradeErr.Serial)
}

func TestSessionDeviceErrorDuringUpload(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, testImage(2000), targeted())
	startUpload(t, s)
	s.HandleFrame(ctx, pageTag)
	s.HandleFrame(ctx, errorTag)
	assert.Equal(t, ReasonDeviceReportedError, failureOf(t, s).Reason)
}

func TestSessionTimeouts(t *testing.T) {
	ctx := context.Background()

	s, _ := newTestSession(t, testImage(10), nil)
	reaction := s.HandleTimeout(ctx)
	require.NotNil(t, reaction.Update)
	assert.Equal(t, ReasonNoResponse, failureOf(t, s).Reason)

	s, _ = newTestSession(t, testImage(10), targeted())
	s.HandleFrame(ctx, helloPayload(testSerial))
	s.HandleTimeout(ctx)
	upgradeErr := failureOf(t, s)
	assert.Equal(t, ReasonTimeout, upgradeErr.Reason)
	assert.Equal(t, UpgradeStHeader, upgradeErr.State)

	s, _ = newTestSession(t, testImage(10), targeted())
	startUpload(t, s)
	s.HandleTimeout(ctx)
	assert.Equal(t, ReasonTimeout, failureOf(t, s).Reason)
}

func TestSessionSelectsTargetInHerd(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, testImage(10), targeted())

	for _, other := range []common.DeviceIdentity{0x11111111, 0x22222222} {
		reaction := s.HandleFrame(ctx, helloPayload(other))
		assert.True(t, reaction.Ignored)
		assert.Nil(t, reaction.Reply)
		assert.Equal(t, UpgradeStStart, s.State())
	}
	reaction := s.HandleFrame(ctx, helloPayload(testSerial))
	assert.False(t, reaction.Ignored)
	assert.Equal(t, UpgradeStHeader, s.State())

	seen := s.Seen()
	require.Len(t, seen, 3)
	assert.Equal(t, common.DeviceIdentity(0x11111111), seen[0].Serial)
	assert.Equal(t, testSerial, seen[2].Serial)
}

func TestSessionRecoveryTakesFirstDevice(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, testImage(10), nil)
	reaction := s.HandleFrame(ctx, []byte{'3', 0x00, 0xAA, 0x55, 0x29, 0x30, 0x19, 0x87})
	assert.Equal(t, [8]byte{0x29, 0x30, 0x19, 0x87}, encoded(t, reaction.Reply))
	status := s.Status()
	assert.Equal(t, UpgradeStHeader, status.State)
	assert.Equal(t, "87193029", status.Serial.String())
}

func TestSessionUpgradeInProgress(t *testing.T) {
	ctx := context.Background()
	for _, payload := range [][]byte{startTag, pageTag, crcTag, doneTag} {
		s, _ := newTestSession(t, testImage(10), nil)
		reaction := s.HandleFrame(ctx, payload)
		assert.Nil(t, reaction.Reply)
		require.NotNil(t, reaction.Update)
		assert.Equal(t, UpgradeStFailure, reaction.Update.State)
		assert.Equal(t, ReasonUpgradeInProgress, failureOf(t, s).Reason, "payload %q", payload)
	}
}

func TestSessionProtocolErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		setup func(*testing.T, *Session)
		input []byte
	}{
		{"empty hello", func(*testing.T, *Session) {}, []byte{}},
		{"random data in start", func(*testing.T, *Session) {}, []byte{0x12, 0x34, 0x56}},
		{"short hello", func(*testing.T, *Session) {}, []byte{'3'}},
		{"error in start", func(*testing.T, *Session) {}, errorTag},
		{"empty instead of size request", func(t *testing.T, s *Session) { s.HandleFrame(ctx, helloPayload(testSerial)) }, []byte{}},
		{"page instead of size request", func(t *testing.T, s *Session) { s.HandleFrame(ctx, helloPayload(testSerial)) }, pageTag},
		{"empty instead of page request", func(t *testing.T, s *Session) { startUpload(t, s) }, []byte{}},
		{"extra data in page request", func(t *testing.T, s *Session) { startUpload(t, s) }, []byte{'P', 0xAA}},
		{"early crc request", func(t *testing.T, s *Session) { startUpload(t, s) }, crcTag},
		{"done during upload", func(t *testing.T, s *Session) { startUpload(t, s) }, doneTag},
		{"duplicate crc request", func(t *testing.T, s *Session) {
			startUpload(t, s)
			for chunk := 0; chunk <= common.ChunksPerPage; chunk++ {
				s.HandleFrame(ctx, pageTag)
			}
		}, crcTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, testImage(2000), nil)
			tt.setup(t, s)
			reaction := s.HandleFrame(ctx, tt.input)
			assert.Nil(t, reaction.Reply)
			assert.Equal(t, ReasonProtocolError, failureOf(t, s).Reason)
		})
	}
}

func TestSessionZeroLengthImage(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, nil, nil)
	s.HandleFrame(ctx, helloPayload(testSerial))
	reaction := s.HandleFrame(ctx, startTag)
	assert.Equal(t, [8]byte{0}, encoded(t, reaction.Reply))
	assert.Equal(t, UpgradeStWaitForDone, s.State())

	reaction = s.HandleFrame(ctx, doneTag)
	assert.Equal(t, UpgradeStComplete, s.State())
	assert.Equal(t, float64(100), reaction.Update.Progress)
}

func TestSessionWaitForDoneErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, nil, nil)
	s.HandleFrame(ctx, helloPayload(testSerial))
	s.HandleFrame(ctx, startTag)
	s.HandleFrame(ctx, errorTag)
	assert.Equal(t, ReasonCrcMismatch, failureOf(t, s).Reason)

	s, _ = newTestSession(t, nil, nil)
	s.HandleFrame(ctx, helloPayload(testSerial))
	s.HandleFrame(ctx, startTag)
	s.HandleFrame(ctx, []byte{})
	assert.Equal(t, ReasonProtocolError, failureOf(t, s).Reason)
}

// foreignHellos are announcements of other devices, one of them runs a bootloader revision this tool does not know
func foreignHellos() [][]byte {
	unknownRevision := helloPayload(0x11111111)
	unknownRevision[1] = '2'
	return [][]byte{helloPayload(0x22222222), helloPayload(testSerial), unknownRevision}
}

func assertHellosIgnored(t *testing.T, s *Session, aState string) {
	t.Helper()
	for _, payload := range foreignHellos() {
		reaction := s.HandleFrame(context.Background(), payload)
		assert.True(t, reaction.Ignored, "%x in %s", payload, aState)
		assert.Nil(t, reaction.Reply)
		assert.Nil(t, reaction.Update)
		assert.Equal(t, aState, s.State())
	}
}

func TestSessionIgnoresHelloWhileBusy(t *testing.T) {
	ctx := context.Background()
	raw := testImage(2000)
	s, image := newTestSession(t, raw, targeted())

	hellos := foreignHellos()
	assert.True(t, s.HandleFrame(ctx, hellos[0]).Ignored)
	assert.True(t, s.HandleFrame(ctx, hellos[2]).Ignored)
	assert.Equal(t, UpgradeStStart, s.State())

	s.HandleFrame(ctx, helloPayload(testSerial))
	assertHellosIgnored(t, s, UpgradeStHeader)

	s.HandleFrame(ctx, startTag)
	s.HandleFrame(ctx, pageTag)
	assertHellosIgnored(t, s, UpgradeStUpload)

	// the transfer continues where it was
	reaction := s.HandleFrame(ctx, pageTag)
	assert.Equal(t, raw[8:16], reaction.Reply.Data[:])
	for i := 2; i < common.ChunksPerPage; i++ {
		s.HandleFrame(ctx, pageTag)
	}
	require.Equal(t, UpgradeStCheckCrc, s.State())
	assertHellosIgnored(t, s, UpgradeStCheckCrc)

	page0 := image.Page(0)
	reaction = s.HandleFrame(ctx, pageTag)
	require.NotNil(t, reaction.Reply)
	assert.Equal(t, frame.ToolCrcResponse, reaction.Reply.Kind)
	assert.Equal(t, crc.Compute(&page0), reaction.Reply.Crc)
	assertHellosIgnored(t, s, UpgradeStCheckCrc)

	reaction = s.HandleFrame(ctx, pageTag)
	assert.Equal(t, UpgradeStUpload, s.State())
	assert.Equal(t, raw[1024:1032], reaction.Reply.Data[:])
	for i := 1; i < common.ChunksPerPage; i++ {
		s.HandleFrame(ctx, pageTag)
	}
	s.HandleFrame(ctx, pageTag)
	require.Equal(t, UpgradeStWaitForDone, s.State())
	assertHellosIgnored(t, s, UpgradeStWaitForDone)

	s.HandleFrame(ctx, doneTag)
	assert.Equal(t, UpgradeStComplete, s.State())
}

func TestSessionHelloOfUnknownRevision(t *testing.T) {
	ctx := context.Background()
	unknownTarget := helloPayload(testSerial)
	unknownTarget[1] = '2'

	s, _ := newTestSession(t, testImage(100), targeted())
	reaction := s.HandleFrame(ctx, unknownTarget)
	assert.Nil(t, reaction.Reply)
	assert.Equal(t, ReasonProtocolError, failureOf(t, s).Reason)

	s, _ = newTestSession(t, testImage(100), nil)
	reaction = s.HandleFrame(ctx, unknownTarget)
	assert.True(t, reaction.Ignored)
	assert.Equal(t, UpgradeStStart, s.State())
	s.HandleFrame(ctx, helloPayload(0x22222222))
	assert.Equal(t, UpgradeStHeader, s.State())
	assert.Equal(t, common.DeviceIdentity(0x22222222), s.Status().Serial)
	require.Len(t, s.Seen(), 2)
}

func TestSessionIgnoresFramesWhenTerminated(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, nil, nil)
	s.HandleFrame(ctx, helloPayload(testSerial))
	s.HandleFrame(ctx, startTag)
	s.HandleFrame(ctx, doneTag)
	require.True(t, s.Terminated())
	for _, payload := range [][]byte{helloPayload(testSerial), startTag, errorTag, {}} {
		reaction := s.HandleFrame(ctx, payload)
		assert.True(t, reaction.Ignored)
		assert.Nil(t, reaction.Update)
	}
	assert.True(t, s.HandleTimeout(ctx).Ignored)
	assert.Equal(t, UpgradeStComplete, s.State())

	s, _ = newTestSession(t, nil, nil)
	s.HandleFrame(ctx, []byte{0x12, 0x34, 0x56})
	s.HandleFrame(ctx, startTag)
	assert.Equal(t, ReasonProtocolError, failureOf(t, s).Reason)
}

func TestReasonDescriptions(t *testing.T) {
	for r := ReasonNone; r <= ReasonUpgradeInProgress; r++ {
		assert.NotContains(t, r.Description(), "Unknown failure", r.String())
	}
	assert.Equal(t, "Firmware upload data corruption detected", ReasonCrcMismatch.Description())
	assert.Contains(t, Reason(42).Description(), "Unknown failure")
	assert.Equal(t, "Reason(42)", Reason(42).String())
}
