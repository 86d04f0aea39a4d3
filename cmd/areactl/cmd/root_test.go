package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mountly/mountly-backend/internal/config"
)

func TestCheckMatchFlags(t *testing.T) {
	defer func(m string, r float64) { matchMode, minOverlap = m, r }(matchMode, minOverlap)

	tests := []struct {
		mode  string
		ratio float64
		want  error
	}{
		{"centroid", 0, nil},
		{"intersection", 0.25, nil},
		{"intersecton", 0.25, config.ErrBadMatchMode},
		{"intersection", 2, config.ErrBadOverlapRatio},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			matchMode, minOverlap = tt.mode, tt.ratio
			err := checkMatchFlags()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
