package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		tick  float64
		want  float64
	}{
		{"whole yen rounds down", 1234.4, 1, 1234},
		{"whole yen rounds up", 1234.5, 1, 1235},
		{"half tick", 1234.3, 0.5, 1234.5},
		{"tenth tick", 99.96, 0.1, 100.0},
		{"zero tick passes through", 1234.4, 0, 1234.4},
		{"exact multiple unchanged", 1230, 5, 1230},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundToTick(tt.price, tt.tick))
		})
	}
}
