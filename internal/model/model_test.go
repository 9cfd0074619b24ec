package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportTypeValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  ReportType
		want bool
	}{
		{ReportNormal, true},
		{ReportFinal, true},
		{"", false},
		{"weekly", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.typ), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.typ.Valid())
		})
	}
}

func TestReadingJSONOmitsMissingChannels(t *testing.T) {
	t.Parallel()
	p := 1006.5
	b, err := json.Marshal(Reading{ID: 1, StageID: "s", PressureHPa: &p})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, 1006.5, got["pressure_hpa"])
	assert.NotContains(t, got, "gas_flow")
	assert.NotContains(t, got, "biol_flow")
}
