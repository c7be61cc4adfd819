package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteView_CopiesInput(t *testing.T) {
	raw := []byte("hello")
	v := NewByteView(raw)
	raw[0] = 'j'

	require.Equal(t, "hello", v.String())
	require.Equal(t, 5, v.Len())

	out := v.ByteSlice()
	out[0] = 'y'
	require.Equal(t, "hello", v.String(), "ByteSlice 必须返回副本")
}

func TestByteView_Empty(t *testing.T) {
	v := NewByteView(nil)
	require.Zero(t, v.Len())
	require.Equal(t, "", v.String())
	require.True(t, v.Equal(NewByteView([]byte{})))
}
