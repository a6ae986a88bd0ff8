// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package varint packs signed integers into the compact varint format used by JeeLabs
// nodes: 7 bits per byte, most significant group first, the high bit marking the last byte
// of each value, and the sign folded into the low bit. Small counters and RSSI values take
// one byte each, which suits LoRa payloads.
//
// Reference: http://jeelabs.org/article/1620c/
package varint

import "errors"

// ErrTruncated is returned by Decode when the buffer ends in the middle of a value.
var ErrTruncated = errors.New("varint: truncated value")

// Append appends the encoding of each value to buf and returns the extended buffer.
func Append(buf []byte, vals ...int) []byte {
	for _, v := range vals {
		u := uint64(v) << 1
		if v < 0 {
			u = ^u
		}
		if u == 0 {
			buf = append(buf, 0x80)
			continue
		}
		var temp [10]byte
		i := len(temp)
		for u != 0 {
			i--
			temp[i] = byte(u & 0x7f)
			u >>= 7
		}
		temp[len(temp)-1] |= 0x80
		buf = append(buf, temp[i:]...)
	}
	return buf
}

// Encode returns the encoding of vals.
func Encode(vals ...int) []byte { return Append(nil, vals...) }

// Decode decodes all the values in buf. The values decoded before an incomplete trailing
// value are returned together with ErrTruncated.
func Decode(buf []byte) ([]int, error) {
	res := []int{}
	var val uint64
	pending := false
	for _, b := range buf {
		val = val<<7 | uint64(b&0x7f)
		pending = true
		if b&0x80 != 0 {
			if val&1 == 0 {
				res = append(res, int(val>>1))
			} else {
				res = append(res, int(^(val >> 1)))
			}
			val = 0
			pending = false
		}
	}
	if pending {
		return res, ErrTruncated
	}
	return res, nil
}
