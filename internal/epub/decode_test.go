package epub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Decode(t *testing.T) {
	d := NewDefaultDecoder()

	tests := []struct {
		name     string
		data     string
		want     string
		encoding string
	}{
		{name: "utf-8", data: "héllo", want: "héllo", encoding: "UTF-8"},
		{name: "utf-8 with bom", data: "\xef\xbb\xbfhello", want: "hello", encoding: "UTF-8"},
		{name: "gbk", data: "\xc4\xe3\xba\xc3", want: "你好", encoding: "GBK"},
		{name: "latin-1 when gbk yields replacement", data: "na\xefve caf\xe9!", want: "naïve café!", encoding: "ISO-8859-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc, err := d.Decode([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.encoding, enc)
		})
	}
}

func TestDecoder_Undecodable(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	_, _, err = d.Decode([]byte{0xff, 0xfe, 0xfd})
	assert.ErrorIs(t, err, ErrUndecodable)
	assert.Contains(t, err.Error(), "tried UTF-8")
}

func TestNewDecoder(t *testing.T) {
	d, err := NewDecoder("GBK", " ", "ISO-8859-1")
	require.NoError(t, err)
	assert.Len(t, d.Encodings(), 2)

	got, _, err := d.Decode([]byte("caf\xe9 "))
	require.NoError(t, err)
	assert.Equal(t, "café ", got)

	_, err = NewDecoder("no-such-charset")
	assert.Error(t, err)
}

func TestNewDefaultDecoder_Encodings(t *testing.T) {
	assert.Equal(t, DefaultFallbackEncodings, NewDefaultDecoder().Encodings())
}
