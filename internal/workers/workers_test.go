package workers

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	t.Setenv(EnvOverride, "")

	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{"CPU-bound task (1.0x multiplier)", 1.0, 0, 1, availableCPU},
		{"I/O-bound task (2.0x multiplier)", 2.0, 0, 1, availableCPU * 2},
		{"With limit lower than calculated", 2.0, 2, 1, 2},
		{"Very low multiplier", 0.01, 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit)
			assert.GreaterOrEqual(t, got, tt.minExpect)
			assert.LessOrEqual(t, got, tt.maxExpect)
		})
	}
}

func TestCountOverride(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		limit int
		want  int
	}{
		{"override used", "5", 0, 5},
		{"override capped by limit", "12", 4, 4},
		{"invalid override ignored", "abc", 1, 1},
		{"zero override ignored", "0", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvOverride, tt.env)
			assert.Equal(t, tt.want, Count(1.0, tt.limit))
		})
	}
}

func TestForTasks(t *testing.T) {
	t.Setenv(EnvOverride, "")

	tests := []struct {
		name      string
		requested int
		tasks     int
		want      int
	}{
		{"requested below task count", 3, 10, 3},
		{"bounded by task count", 8, 2, 2},
		{"single task", 0, 1, 1},
		{"unknown task count keeps request", 4, 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForTasks(tt.requested, tt.tasks))
		})
	}

	auto := ForTasks(0, 1000)
	assert.Equal(t, ForCPU(0), auto)
}
