package wayland

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageStringPadding(t *testing.T) {
	tests := []struct {
		in   string
		size int
	}{
		{"", 8 + 4 + 4},
		{"abc", 8 + 4 + 4},
		{"abcd", 8 + 4 + 8},
		{"wl_output", 8 + 4 + 12},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m := newMessage(7, 3)
			m.String(tt.in)
			b := m.bytes()
			require.Len(t, b, tt.size)

			sender, opcode, size := parseHeader(b)
			assert.Equal(t, uint32(7), sender)
			assert.Equal(t, uint16(3), opcode)
			assert.Equal(t, tt.size, size)

			d := &decoder{b: b[headerSize:]}
			assert.Equal(t, tt.in, d.String())
			assert.NoError(t, d.err)
			assert.Empty(t, d.b)
		})
	}
}

func TestDecoderShortArgsIsSticky(t *testing.T) {
	d := &decoder{b: []byte{1, 0}}
	assert.Zero(t, d.Uint())
	assert.ErrorIs(t, d.err, ErrShortArgs)
	assert.Equal(t, -1, d.FD())
	assert.Equal(t, "", d.String())
}

func TestDecoderRejectsUnterminatedString(t *testing.T) {
	m := newMessage(1, 0)
	m.Uint(4)
	m.b = append(m.b, 'a', 'b', 'c', 'd')
	d := &decoder{b: m.bytes()[headerSize:]}
	assert.Empty(t, d.String())
	assert.ErrorIs(t, d.err, ErrMalformed)
}

func TestDecoderMissingFD(t *testing.T) {
	d := &decoder{}
	assert.Equal(t, -1, d.FD())
	assert.ErrorIs(t, d.err, ErrMissingFD)
}
