package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		expected []uint16
		wantErr  bool
	}{
		{
			name:     "single port",
			spec:     "80",
			expected: []uint16{80},
		},
		{
			name:     "csv",
			spec:     "80,443",
			expected: []uint16{80, 443},
		},
		{
			name:     "range",
			spec:     "8080-8082",
			expected: []uint16{8080, 8081, 8082},
		},
		{
			name:     "mixed with duplicate preserved",
			spec:     "80,443,8080-8082,80",
			expected: []uint16{80, 443, 8080, 8081, 8082, 80},
		},
		{
			name:    "port zero",
			spec:    "0",
			wantErr: true,
		},
		{
			name:    "port too high",
			spec:    "65536",
			wantErr: true,
		},
		{
			name:    "malformed range",
			spec:    "80-90-100",
			wantErr: true,
		},
		{
			name:    "garbage",
			spec:    "http",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExpandAll(t *testing.T) {
	got, err := Expand("all")
	require.NoError(t, err)
	require.Len(t, got, 65535)
	assert.Equal(t, uint16(1), got[0])
	assert.Equal(t, uint16(65535), got[65534])
}

func TestOrderDeduplicates(t *testing.T) {
	got := Order([]uint16{80, 443, 8080, 8081, 8082, 80})
	assert.Len(t, got, 5)
}

func TestOrderPopularityFirst(t *testing.T) {
	// 80 and 443 are near the top of the popularity table and must come
	// before the unranked high ports regardless of numeric order
	got := Order([]uint16{65100, 8081, 443, 80})
	require.Len(t, got, 4)
	assert.Equal(t, uint16(80), got[0])
	assert.Equal(t, uint16(443), got[1])
}

func TestOrderUnrankedNumeric(t *testing.T) {
	// ports absent from the popularity table sort after ranked ones, in
	// numeric order
	got := Order([]uint16{65103, 65101, 65102})
	assert.Equal(t, []uint16{65101, 65102, 65103}, got)
}

func TestRank(t *testing.T) {
	// 80 is the most popular TCP port in the nmap table
	assert.Equal(t, 0, Rank(80))
	assert.Less(t, Rank(443), Rank(8081))
	assert.Equal(t, unranked, Rank(65101))
}
