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

//Package crc computes the page checksum the stm32 CAN bootloader checks after each flash page
package crc

import (
	"encoding/binary"

	"github.com/openinverter/oic-upgrade-go/internal/pkg/common"
)

const (
	polynomial = 0x04C11DB7
	initial    = 0xFFFFFFFF
)

var table = makeTable()

func makeTable() *[256]uint32 {
	t := new([256]uint32)
	for i := range t {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ polynomial
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Compute returns the checksum of one firmware page.
// The page is read as little endian 32-bit words, each word is fed most significant bit first
// into an MSB-first CRC-32 register (init 0xFFFFFFFF, no reflection, no final xor).
func Compute(aPage *[common.PageSize]byte) uint32 {
	return update(initial, aPage[:])
}

// update feeds whole 32-bit words of aData into the register, a trailing partial word is ignored
func update(aCrc uint32, aData []byte) uint32 {
	for i := 0; i+4 <= len(aData); i += 4 {
		word := binary.LittleEndian.Uint32(aData[i:])
		for shift := 24; shift >= 0; shift -= 8 {
			aCrc = aCrc<<8 ^ table[byte(aCrc>>24)^byte(word>>uint(shift))]
		}
	}
	return aCrc
}
