package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"55 1234 5678", "525512345678", true},
		{"+52 (55) 1234-5678", "525512345678", true},
		{"525512345678", "525512345678", true},
		{"15512345678", "", false},
		{"12345", "", false},
		{"   ", "", false},
		{"135512345678", "", false},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		if c.ok {
			assert.NoError(t, err, c.in)
			assert.Equal(t, c.want, got, c.in)
		} else {
			assert.Error(t, err, c.in)
		}
	}
}

func TestFormatPlus(t *testing.T) {
	assert.Equal(t, "+525512345678", FormatPlus("525512345678"))
	assert.Equal(t, "", FormatPlus(""))
}
