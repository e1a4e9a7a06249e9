package encoding

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	out, err := DecodeRLE(EncodeRLE(in), len(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRLE_Empty(t *testing.T) {
	assert.Equal(t, "", EncodeRLE(nil))
	out, err := DecodeRLE("", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRLE_RejectsWrongLength(t *testing.T) {
	enc := EncodeRLE([]uint16{4, 4, 4, 4})
	_, err := DecodeRLE(enc, 3)
	assert.ErrorContains(t, err, "overflows")
	_, err = DecodeRLE(enc, 5)
	assert.ErrorContains(t, err, "want 5")
}

func TestRLE_RejectsTruncated(t *testing.T) {
	// A lone index with no run length.
	_, err := DecodeRLE(base64.StdEncoding.EncodeToString([]byte{0x02}), 0)
	assert.Error(t, err)
	_, err = DecodeRLE("%%%", 0)
	assert.Error(t, err)
}
