package xbridge

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// iconRecord encodes one (width, height, pixels...) record the way
// _NET_WM_ICON lays them out: little-endian 32-bit cardinals.
func iconRecord(w, h int, argb uint32) []byte {
	buf := make([]byte, 8+w*h*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(w))
	binary.LittleEndian.PutUint32(buf[4:], uint32(h))
	for i := 0; i < w*h; i++ {
		binary.LittleEndian.PutUint32(buf[8+i*4:], argb)
	}
	return buf
}

func TestLargestIconPicksBiggest(t *testing.T) {
	value := append(iconRecord(16, 16, 0xff112233), iconRecord(32, 32, 0xffaabbcc)...)
	value = append(value, iconRecord(24, 24, 0xff445566)...)

	w, h, pix := largestIcon(value)
	assert.Equal(t, 32, w)
	assert.Equal(t, 32, h)
	require.Len(t, pix, 32*32*4)

	// 0xffaabbcc stored little-endian reads back B, G, R, A.
	assert.Equal(t, []byte{0xcc, 0xbb, 0xaa, 0xff}, pix[:4])
}

func TestLargestIconSingleRecord(t *testing.T) {
	w, h, pix := largestIcon(iconRecord(2, 2, 0x80000000))
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
	assert.Len(t, pix, 16)
}

func TestLargestIconRejectsGarbage(t *testing.T) {
	_, _, pix := largestIcon(nil)
	assert.Nil(t, pix)

	_, _, pix = largestIcon([]byte{1, 2, 3})
	assert.Nil(t, pix)

	// Header claims more pixels than the property carries.
	truncated := iconRecord(8, 8, 0xffffffff)[:20]
	_, _, pix = largestIcon(truncated)
	assert.Nil(t, pix)
}
