package session

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFrameSync(t *testing.T) {
	assert.Equal(t, 2, findFrameSync([]byte{0x00, 0x12, 0xFF, 0xFB, 0x90}))
	assert.Equal(t, 0, findFrameSync([]byte{0xFF, 0xE3}))
	assert.Equal(t, -1, findFrameSync([]byte{0xFF, 0x1F, 0xFF}))
	assert.Equal(t, -1, findFrameSync(nil))
}

func TestSinkDropsBytesBeforeSync(t *testing.T) {
	var out bytes.Buffer
	ready := 0
	s := newAudioSink(&out, 1024, func() { ready++ }, slog.Default())

	n, err := s.Write([]byte("junk"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Zero(t, ready)

	_, err = s.Write([]byte{'x', 0xFF, 0xFB, 0x01})
	require.NoError(t, err)
	_, err = s.Write([]byte{0x02})
	require.NoError(t, err)

	assert.Equal(t, 1, ready)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x01, 0x02}, out.Bytes())
}

func TestSinkSyncAcrossWrites(t *testing.T) {
	var out bytes.Buffer
	ready := 0
	s := newAudioSink(&out, 1024, func() { ready++ }, slog.Default())

	_, _ = s.Write([]byte{0x00, 0xFF})
	_, _ = s.Write([]byte{0xFB, 0x90})

	assert.Equal(t, 1, ready)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x90}, out.Bytes())
}

func TestSinkWindow(t *testing.T) {
	var out bytes.Buffer
	ready := 0
	s := newAudioSink(&out, 8, func() { ready++ }, slog.Default())

	_, _ = s.Write([]byte("12345"))
	assert.Zero(t, ready)
	_, _ = s.Write([]byte("67890"))
	assert.Equal(t, 1, ready)
	assert.Equal(t, "67890", out.String())
}

func TestSinkMutedAndClosed(t *testing.T) {
	var out bytes.Buffer
	s := newAudioSink(&out, 8, nil, slog.Default())
	s.setMuted(true)

	n, err := s.Write([]byte{0xFF, 0xFB, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, out.Len())

	s.setMuted(false)
	_, _ = s.Write([]byte{0x02})
	assert.Equal(t, []byte{0x02}, out.Bytes())

	require.NoError(t, s.Close())
	_, err = s.Write([]byte{0x03})
	assert.Error(t, err)
}
