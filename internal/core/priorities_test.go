package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

func weights(ps []core.Priority) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.Weight
	}
	return out
}

func TestNormalizeWeights(t *testing.T) {
	tests := []struct {
		name    string
		in      []float64
		want    []float64
		wantErr error
	}{
		{name: "already normalized", in: []float64{0.3, 0.3, 0.2, 0.1, 0.1}, want: []float64{0.3, 0.3, 0.2, 0.1, 0.1}},
		{name: "scaled up", in: []float64{0.2, 0.2, 0.1, 0, 0}, want: []float64{0.4, 0.4, 0.2, 0, 0}},
		{name: "all zero", in: []float64{0, 0, 0, 0, 0}, want: []float64{1, 0, 0, 0, 0}},
		{name: "over 100%", in: []float64{0.5, 0.5, 0.2, 0, 0}, wantErr: core.ErrWeightsExceedTotal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := core.DefaultPriorities()
			for i, w := range tt.in {
				ps[i].Weight = w
			}
			got, err := core.NormalizeWeights(ps)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, weights(got), 1e-9)
		})
	}
}

func TestNormalizeWeights_RejectsNegative(t *testing.T) {
	ps := core.DefaultPriorities()
	ps[2].Weight = -0.1
	_, err := core.NormalizeWeights(ps)
	assert.Error(t, err)
}

func TestReorder(t *testing.T) {
	ps := core.DefaultPriorities()
	got, err := core.Reorder(ps, 0, 4)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"2", "3", "4", "5", "1"}, ids)
	assert.Equal(t, "1", ps[0].ID, "input is not modified")

	_, err = core.Reorder(ps, 0, 5)
	assert.ErrorIs(t, err, core.ErrRowOutOfRange)
}

func TestApplyPreset(t *testing.T) {
	ps := append(core.DefaultPriorities(), core.Priority{ID: "custom", Name: "Custom"})

	got, err := core.ApplyPreset(ps, "Fair Distribution")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.2, 0.3, 0.2, 0.1, 0.2}, weights(got))

	_, err = core.ApplyPreset(ps, "Chaos")
	assert.ErrorIs(t, err, core.ErrUnknownPreset)
}
