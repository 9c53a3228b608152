package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		current    string
		changeType string
		expected   string
	}{
		{"1.4.9", Minor, "1.5.0"},
		{"2.0.0", Major, "3.0.0"},
		{"0.0.1", Patch, "0.0.2"},
		{"1.2.3", Major, "2.0.0"},
		{"1.2.3", "", "1.2.4"},
		{"1.2.3", "unknown", "1.2.4"},
		{"1.9.9", Minor, "1.10.0"},
		{"garbage", Major, "1.0.1"},
		{"1.2", Patch, "1.0.1"},
		{"1.x.3", Minor, "1.0.1"},
		{"", Patch, "1.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.current+"/"+tt.changeType, func(t *testing.T) {
			assert.Equal(t, tt.expected, Next(tt.current, tt.changeType))
		})
	}
}

func TestNext_BumpsExactlyOneComponent(t *testing.T) {
	for _, ct := range []string{Major, Minor, Patch} {
		cur := "3.7.11"
		next, err := Parse(Next(cur, ct))
		require.NoError(t, err)
		prev, _ := Parse(cur)

		switch ct {
		case Major:
			assert.Equal(t, [3]int{prev[0] + 1, 0, 0}, next)
		case Minor:
			assert.Equal(t, [3]int{prev[0], prev[1] + 1, 0}, next)
		case Patch:
			assert.Equal(t, [3]int{prev[0], prev[1], prev[2] + 1}, next)
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		v1, v2   string
		expected int
	}{
		{"1.2.3", "1.2.10", -1},
		{"1.2.10", "1.2.3", 1},
		{"2.0.0", "1.99.99", 1},
		{"1.0.0", "1.0.0", 0},
		{"bad", "1.0.0", 0},
		{"1.0.0", "1.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.v1+"_vs_"+tt.v2, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compare(tt.v1, tt.v2))
		})
	}
}

func TestValidChangeType(t *testing.T) {
	assert.True(t, ValidChangeType(""))
	assert.True(t, ValidChangeType(Major))
	assert.True(t, ValidChangeType(Minor))
	assert.True(t, ValidChangeType(Patch))
	assert.False(t, ValidChangeType("initial"))
	assert.False(t, ValidChangeType("MAJOR"))
}
