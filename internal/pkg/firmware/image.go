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

package firmware

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/boguslaw-wojcik/crc32a"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

// ErrImageTooLarge is returned for images needing more than common.MaxPages pages
var ErrImageTooLarge = errors.New("firmware image too large")

// Segmented - firmware image viewed as a sequence of flash pages, the last page zero padded
type Segmented struct {
	image     []byte
	pageCount int
}

// Segment splits an image into pages.
// The image is copied so later changes of the caller's buffer do not affect a running upgrade.
func Segment(aImage []byte) (*Segmented, error) {
	pages := (len(aImage) + common.PageSize - 1) / common.PageSize
	if pages > common.MaxPages {
		return nil, fmt.Errorf("%w: %d bytes need %d pages, at most %d pages (%d bytes) fit",
			ErrImageTooLarge, len(aImage), pages, common.MaxPages, common.MaxImageSize)
	}
	return &Segmented{
		image:     append([]byte(nil), aImage...),
		pageCount: pages,
	}, nil
}

// PageCount returns the number of pages to be flashed
func (s *Segmented) PageCount() int {
	return s.pageCount
}

// Len returns the unpadded image length in bytes
func (s *Segmented) Len() int {
	return len(s.image)
}

// Page returns page aIndex, bytes beyond the image end are zero. It panics for indices outside [0, PageCount).
func (s *Segmented) Page(aIndex int) [common.PageSize]byte {
	if aIndex < 0 || aIndex >= s.pageCount {
		panic(fmt.Sprintf("firmware page %d out of range [0, %d)", aIndex, s.pageCount))
	}
	var page [common.PageSize]byte
	start := aIndex * common.PageSize
	end := start + common.PageSize
	if end > len(s.image) {
		end = len(s.image)
	}
	copy(page[:], s.image[start:end])
	return page
}

// Chunk returns the 8 bytes of page aIndex starting at aOffset, zero padded beyond the image end
func (s *Segmented) Chunk(aIndex int, aOffset int) [common.ChunkSize]byte {
	if aIndex < 0 || aIndex >= s.pageCount || aOffset < 0 || aOffset+common.ChunkSize > common.PageSize {
		panic(fmt.Sprintf("firmware chunk %d/%d out of range", aIndex, aOffset))
	}
	var chunk [common.ChunkSize]byte
	start := aIndex*common.PageSize + aOffset
	if start < len(s.image) {
		copy(chunk[:], s.image[start:])
	}
	return chunk
}

// Fingerprint returns a checksum over the unpadded image for operator display and log correlation
func (s *Segmented) Fingerprint() uint32 {
	imageCRC := crc32a.Checksum(s.image)
	// crc32a delivers the checksum in PHP byte order
	byteSlice := make([]byte, 4)
	binary.LittleEndian.PutUint32(byteSlice, imageCRC)
	return binary.BigEndian.Uint32(byteSlice)
}
