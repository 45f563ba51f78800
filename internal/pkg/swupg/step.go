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
	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/crc"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/discovery"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/firmware"
	"github.com/openinverter/oic-upgrade-go/internal/pkg/frame"
)

// cursor - position of the transfer within the image
type cursor struct {
	page    int
	offset  int
	crcSent bool
	pageCrc uint32
	sent    int
}

// decision - outcome of one step, applied by the Session
type decision struct {
	event   string
	reply   *frame.ToolFrame
	failure Reason
	serial  *common.DeviceIdentity
	cursor  cursor
	ignored bool
}

func (d decision) fail(aReason Reason) decision {
	d.event = UpgradeEvFail
	d.failure = aReason
	d.reply = nil
	return d
}

func (d decision) respond(aReply frame.ToolFrame) decision {
	d.reply = &aReply
	return d
}

func (d decision) ignore() decision {
	d.ignored = true
	return d
}

// decide computes the reaction to one decoded device frame in aState without touching any state.
// aDecodeErr is set if the payload could not be decoded.
func decide(aState string, aCursor cursor, aImage *firmware.Segmented, aListener *discovery.Listener,
	aFrame frame.DeviceFrame, aDecodeErr error) decision {
	next := decision{cursor: aCursor}
	if IsTerminal(aState) {
		return next.ignore()
	}
	if aDecodeErr != nil {
		return next.fail(ReasonProtocolError)
	}
	// other devices may boot at any time
	if aFrame.Kind == frame.DevHello && aState != UpgradeStStart {
		return next.ignore()
	}
	aFrame = frame.Resolve(aFrame, aCursor.offset, aCursor.crcSent)

	switch aState {
	case UpgradeStStart:
		return decideStart(next, aListener, aFrame)
	case UpgradeStHeader:
		return decideHeader(next, aImage, aFrame)
	case UpgradeStUpload:
		return decideUpload(next, aImage, aFrame)
	case UpgradeStCheckCrc:
		return decideCheckCrc(next, aImage, aFrame)
	case UpgradeStWaitForDone:
		return decideWaitForDone(next, aFrame)
	}
	return next.fail(ReasonProtocolError)
}

func decideStart(aNext decision, aListener *discovery.Listener, aFrame frame.DeviceFrame) decision {
	switch aFrame.Kind {
	case frame.DevHello:
		serial, ok := aListener.Accepts(aFrame)
		if !ok {
			// the selected device itself announcing a revision this tool does not speak
			if target, targeted := aListener.Target(); targeted && target == aFrame.Serial {
				return aNext.fail(ReasonProtocolError)
			}
			return aNext.ignore()
		}
		aNext.event = UpgradeEvDeviceFound
		aNext.serial = &serial
		return aNext.respond(frame.NewDeviceIdentifier(serial))
	case frame.DevStart, frame.DevPageRequest, frame.DevCrcRequest, frame.DevDone:
		return aNext.fail(ReasonUpgradeInProgress)
	}
	return aNext.fail(ReasonProtocolError)
}

func decideHeader(aNext decision, aImage *firmware.Segmented, aFrame frame.DeviceFrame) decision {
	if aFrame.Kind != frame.DevStart {
		return aNext.fail(ReasonProtocolError)
	}
	aNext.cursor = cursor{}
	if aImage.PageCount() == 0 {
		aNext.event = UpgradeEvWaitForDone
	} else {
		aNext.event = UpgradeEvUpload
	}
	return aNext.respond(frame.NewStartResponse(uint8(aImage.PageCount())))
}

func decideUpload(aNext decision, aImage *firmware.Segmented, aFrame frame.DeviceFrame) decision {
	switch aFrame.Kind {
	case frame.DevPageRequest:
		return sendChunk(aNext, aImage)
	case frame.DevError:
		return aNext.fail(ReasonDeviceReportedError)
	}
	return aNext.fail(ReasonProtocolError)
}

func decideCheckCrc(aNext decision, aImage *firmware.Segmented, aFrame frame.DeviceFrame) decision {
	switch aFrame.Kind {
	case frame.DevCrcRequest:
		if aNext.cursor.crcSent {
			return aNext.fail(ReasonProtocolError)
		}
		aNext.cursor.crcSent = true
		if aNext.cursor.page+1 >= aImage.PageCount() {
			aNext.cursor.page = aImage.PageCount()
			aNext.event = UpgradeEvWaitForDone
		}
		return aNext.respond(frame.NewCrcResponse(aNext.cursor.pageCrc))
	case frame.DevPageRequest:
		// the device accepted the checksum and asks for the next page
		aNext.cursor.page++
		aNext.cursor.offset = 0
		aNext.cursor.crcSent = false
		aNext.cursor.pageCrc = 0
		aNext = sendChunk(aNext, aImage)
		aNext.event = UpgradeEvNextPage
		return aNext
	case frame.DevError:
		return aNext.fail(ReasonCrcMismatch)
	}
	return aNext.fail(ReasonProtocolError)
}

func decideWaitForDone(aNext decision, aFrame frame.DeviceFrame) decision {
	switch aFrame.Kind {
	case frame.DevDone:
		aNext.event = UpgradeEvDone
		return aNext
	case frame.DevError:
		return aNext.fail(ReasonCrcMismatch)
	}
	return aNext.fail(ReasonProtocolError)
}

// sendChunk answers a page request with the next 8 bytes of the current page
func sendChunk(aNext decision, aImage *firmware.Segmented) decision {
	cur := &aNext.cursor
	chunk := aImage.Chunk(cur.page, cur.offset)
	cur.offset += common.ChunkSize
	cur.sent += common.ChunkSize
	if cur.offset >= common.PageSize {
		page := aImage.Page(cur.page)
		cur.pageCrc = crc.Compute(&page)
		cur.crcSent = false
		aNext.event = UpgradeEvPageSent
	}
	return aNext.respond(frame.NewPageResponse(chunk))
}

// decideTimeout computes the reaction to the response timeout expiring in aState
func decideTimeout(aState string, aCursor cursor) decision {
	next := decision{cursor: aCursor}
	switch {
	case IsTerminal(aState):
		return next.ignore()
	case aState == UpgradeStStart:
		return next.fail(ReasonNoResponse)
	}
	return next.fail(ReasonTimeout)
}

// progress returns the share of image bytes sent in percent
func progress(aState string, aCursor cursor, aImageLen int) float64 {
	if aState == UpgradeStComplete {
		return 100
	}
	if aImageLen == 0 {
		return 0
	}
	sent := aCursor.sent
	if sent > aImageLen {
		sent = aImageLen
	}
	return float64(sent) * 100 / float64(aImageLen)
}
