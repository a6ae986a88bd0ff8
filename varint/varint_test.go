// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package varint

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

var varinttests = map[string]struct {
	dec []int
	enc []byte
}{
	"empty": {[]int{}, []byte{}},
	"small": {[]int{0, 1, 2, -1, -2}, []byte{0x80, 0x82, 0x84, 0x81, 0x83}},
	"rssi":  {[]int{-60, -120}, []byte{0xf7, 0x01, 0xef}},
	"positive": {
		[]int{63, 64, 127, (12 << 6) + 34},
		[]byte{0xfe, 0x1, 0x80, 1, 0xfe, 12, 128 + 68}},
	"negative": {
		[]int{-64, -65, -127, -128},
		[]byte{0xff, 0x1, 0x81, 1, 0xfd, 1, 0xff}},
	"extremes": {
		[]int{-9223372036854775808, 9223372036854775807},
		[]byte{1, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0xff,
			1, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0xfe}},
}

func TestEncode(t *testing.T) {
	for n, tc := range varinttests {
		if got := Encode(tc.dec...); !bytes.Equal(got, tc.enc) {
			t.Errorf("Encoding %s got\n%#v expected\n%#v", n, got, tc.enc)
		}
	}
}

func TestDecode(t *testing.T) {
	for n, tc := range varinttests {
		got, err := Decode(tc.enc)
		if err != nil || !reflect.DeepEqual(got, tc.dec) {
			t.Errorf("Decoding %s got\n%+v %v expected\n%+v", n, got, err, tc.dec)
		}
	}
}

func TestAppend(t *testing.T) {
	buf := Append([]byte{0xaa}, 1, -1)
	if !bytes.Equal(buf, []byte{0xaa, 0x82, 0x81}) {
		t.Fatalf("got %#v", buf)
	}
}

func TestDecodeTruncated(t *testing.T) {
	got, err := Decode([]byte{0x82, 0x01})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("Decode returned %v", err)
	}
	if !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("got %v", got)
	}
}
