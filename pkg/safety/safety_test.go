package safety

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tokens := Parse("SMBus, vengeance_rgb", "", " ddr4_temperature ")

	assert.Equal(t, []string{"ddr4_temperature", "smbus", "vengeance_rgb"}, tokens.List())
	assert.True(t, tokens.Has(SMBus, VengeanceRGB))
	assert.False(t, Parse().Has(SMBus))
	assert.True(t, Parse().Has(), "an empty requirement is always satisfied")
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name    string
		tokens  Tokens
		missing []string
	}{
		{"none", Parse(), []string{SMBus, VengeanceRGB}},
		{"bus only", Parse(SMBus), []string{VengeanceRGB}},
		{"driver only", Parse(VengeanceRGB), []string{SMBus}},
		{"both", Parse(SMBus, VengeanceRGB), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tokens.Require(SMBus, VengeanceRGB)
			if tt.missing == nil {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotEnabled))

			var notEnabled *NotEnabledError
			require.ErrorAs(t, err, &notEnabled)
			assert.Equal(t, tt.missing, notEnabled.Features)
		})
	}
}

func TestUnion(t *testing.T) {
	u := Parse(SMBus).Union(Parse(VengeanceRGB))
	assert.Equal(t, "smbus,vengeance_rgb", u.String())
}
