package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSamples(t *testing.T) {
	t.Parallel()

	in := `{"timestamp":"2025-03-10T10:00:00Z","gas_total_m3":12.5}

{"timestamp":"2025-03-10T09:00:00Z","gas_total_m3":10,"presion":1001}
`
	samples, err := ReadSamples(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), samples[0].Timestamp.UTC())
	assert.Equal(t, 10.0, samples[0].Payload.Field(KeyGasTotal).Value)
	assert.NotContains(t, samples[0].Payload, KeyTimestamp)
	assert.Equal(t, 12.5, samples[1].Payload.Field(KeyGasTotal).Value)

	rec, err := NewReconciler(nil).Reconcile(samples)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, rec.Daily["2025-03-10"], 1e-9)
}

func TestReadSamples_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"not json", "gas=1\n"},
		{"array", "[1,2]\n"},
		{"missing timestamp", `{"gas_flow":1}` + "\n"},
		{"bad timestamp", `{"timestamp":"10/03/2025","gas_flow":1}` + "\n"},
		{"numeric timestamp", `{"timestamp":1741600800,"gas_flow":1}` + "\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadSamples(strings.NewReader(tt.in))
			require.ErrorIs(t, err, ErrBadSample)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestReadSamples_Empty(t *testing.T) {
	t.Parallel()

	samples, err := ReadSamples(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, samples)
}
