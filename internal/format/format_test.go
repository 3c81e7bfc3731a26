package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 500 * time.Microsecond, want: "500µs"},
		{in: 250 * time.Millisecond, want: "250ms"},
		{in: 1500 * time.Millisecond, want: "1.5s"},
		{in: 90 * time.Second, want: "1.5m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Duration(tt.in))
	}

	assert.Equal(t, "2.3s", Millis(2340))
}

func TestBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0 B", Bytes(0))
	assert.Equal(t, "1023 B", Bytes(1023))
	assert.Equal(t, "1.5 KiB", Bytes(1536))
	assert.Equal(t, "2.0 MiB", Bytes(2*1024*1024))
}

func TestSigned(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "+15.00", Signed(15))
	assert.Equal(t, "-2.50", Signed(-2.5))
	assert.Equal(t, "0.00", Signed(0))
}
