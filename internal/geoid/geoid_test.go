package geoid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full geoid", "53033010100", "010100"},
		{"api geo_id", "1400000US53033010100", "010100"},
		{"county and tract", "033010100", "010100"},
		{"tract code", "010100", "010100"},
		{"lost leading zero", "10100", "010100"},
		{"basic code", "0101", "010100"},
		{"short basic code", "101", "010100"},
		{"display form", "101.01", "010101"},
		{"display form one digit suffix", "101.1", "010110"},
		{"county prefixed", "033-0101", "010100"},
		{"whitespace", "  53033010100 ", "010100"},
		{"empty", "", ""},
		{"letters", "abc", ""},
		{"too long", "5303301010099", ""},
		{"seven digits", "1234567", ""},
		{"bad display", "12345.1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTract(tt.in))
		})
	}
}

func TestNormalizeTract_LongAndShortFormsAgree(t *testing.T) {
	long := "53033010100"
	for _, short := range []string{"0101", "101", "033-0101", "010100", "101.00"} {
		assert.True(t, SameTract(long, short), "%s vs %s", long, short)
		assert.Equal(t, NormalizeTract(long), NormalizeTract(short))
	}
	assert.False(t, SameTract("53033010100", "53033010200"))
	assert.False(t, SameTract("", ""))
}

func TestNormalizeTract_Idempotent(t *testing.T) {
	for _, in := range []string{"53033010100", "101.01", "033-0101", "7"} {
		once := NormalizeTract(in)
		assert.Equal(t, once, NormalizeTract(once))
	}
}

func TestBuild(t *testing.T) {
	assert.Equal(t, "53033010100", Build("53", "33", "0101"))
	assert.Equal(t, "06001400100", Build("6", "1", "4001"))
	assert.Equal(t, "", Build("", "033", "0101"))
	assert.Equal(t, "", Build("53", "0333", "0101"))
}

func TestNormalizeStateCounty(t *testing.T) {
	assert.Equal(t, "06", NormalizeState("6"))
	assert.Equal(t, "53", NormalizeState(" 53 "))
	assert.Equal(t, "", NormalizeState("WA"))
	assert.Equal(t, "033", NormalizeCounty("33"))
	assert.Equal(t, "001", NormalizeCounty("1"))
	assert.Equal(t, "", NormalizeCounty(""))
}

func TestFormatTract(t *testing.T) {
	assert.Equal(t, "101", FormatTract("53033010100"))
	assert.Equal(t, "101.01", FormatTract("010101"))
	assert.Equal(t, "0", FormatTract("000000"))
	assert.Equal(t, "", FormatTract("x"))
}
