package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	const total = 1000

	tests := []struct {
		header string
		want   ByteRange
		err    error
	}{
		{"bytes=0-", ByteRange{0, 999}, nil},
		{"bytes=0-0", ByteRange{0, 0}, nil},
		{"bytes=100-199", ByteRange{100, 199}, nil},
		{"bytes=900-5000", ByteRange{900, 999}, nil},
		{"bytes= 10 - 20 ", ByteRange{10, 20}, nil},
		{"bytes=-100", ByteRange{900, 999}, nil},
		{"bytes=-5000", ByteRange{0, 999}, nil},
		{"bytes=1000-", ByteRange{}, ErrUnsatisfiable},
		{"bytes=-0", ByteRange{}, ErrUnsatisfiable},
		{"bytes=20-10", ByteRange{}, ErrMalformedRange},
		{"bytes=abc-", ByteRange{}, ErrMalformedRange},
		{"bytes=0-1,5-6", ByteRange{}, ErrMalformedRange},
		{"bytes=+1-2", ByteRange{}, ErrMalformedRange},
		{"bytes=5", ByteRange{}, ErrMalformedRange},
		{"items=0-1", ByteRange{}, ErrMalformedRange},
		{"bytes=-", ByteRange{}, ErrMalformedRange},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.header, total)
		if tt.err != nil {
			require.ErrorIs(t, err, tt.err, tt.header)
			continue
		}
		require.NoError(t, err, tt.header)
		require.Equal(t, tt.want, got, tt.header)
	}
}

func TestParseRange_EmptyFile(t *testing.T) {
	_, err := ParseRange("bytes=0-", 0)
	require.ErrorIs(t, err, ErrUnsatisfiable)
	_, err = ParseRange("bytes=-10", 0)
	require.ErrorIs(t, err, ErrUnsatisfiable)
}

func TestByteRange_Length(t *testing.T) {
	require.Equal(t, int64(1), ByteRange{5, 5}.Length())
	require.Equal(t, int64(100), ByteRange{0, 99}.Length())
}
