// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

// crcTable holds CRC-16-CCITT (poly 0x1021) remainders for every leading byte
var crcTable = func() (t [256]uint16) {
	for i := range t {
		r := uint16(i) << 8
		for k := 0; k < 8; k++ {
			if r&0x8000 != 0 {
				r = r<<1 ^ crcPolynomial
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

// Checksum returns the CRC-16-CCITT of data, seeded with 0xFFFF
func Checksum(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
