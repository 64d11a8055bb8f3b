package fs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitSetClearGet(t *testing.T) {
	r := require.New(t)
	bm := make([]byte, 4)

	for i := 0; i < 32; i++ {
		r.False(bitGet(bm, i))
	}

	bitSet(bm, 0)
	bitSet(bm, 7)
	bitSet(bm, 8)
	bitSet(bm, 31)

	r.True(bitGet(bm, 0))
	r.True(bitGet(bm, 7))
	r.True(bitGet(bm, 8))
	r.True(bitGet(bm, 31))
	r.False(bitGet(bm, 1))
	r.False(bitGet(bm, 9))

	bitClear(bm, 7)
	r.False(bitGet(bm, 7))
	r.True(bitGet(bm, 8))
}

func TestBitFindClear(t *testing.T) {
	r := require.New(t)
	bm := make([]byte, 2)

	r.Equal(0, bitFindClear(bm, 0, 16))

	for i := 0; i < 16; i++ {
		bitSet(bm, i)
	}
	r.Equal(-1, bitFindClear(bm, 0, 16))

	bitClear(bm, 5)
	r.Equal(5, bitFindClear(bm, 0, 16))
	r.Equal(-1, bitFindClear(bm, 0, 5))
}
