package sidecar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHierarchical(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"ai_cluster_fine_003", "AI/cluster/fine/003"},
		{"ai_cluster_coarse_010", "AI/cluster/coarse/010"},
		{"Cam2_cluster_fine_1", "CAM2/cluster/fine/1"},
		{"fine_003", "fine_003"},
		{"landscape", "landscape"},
		{"ai_cluster_fine_", "ai_cluster_fine_"},
		{"my_ai_cluster_fine_003", "MY_AI/cluster/fine/003"},
		{"my-ai_cluster_coarse_001", "MY-AI/cluster/coarse/001"},
		{"a/b_cluster_fine_003", "a/b_cluster_fine_003"},
		{"_cluster_fine_003", "_cluster_fine_003"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, Hierarchical(tt.tag))
			assert.Equal(t, Hierarchical(tt.tag), Hierarchical(tt.tag))
		})
	}
}

func TestKeyword(t *testing.T) {
	assert.Equal(t, "ai_cluster_fine_003", Keyword("fine_003", "ai"))
	assert.Equal(t, "fine_003", Keyword("fine_003", ""))
	assert.Equal(t, []string{"ai_cluster_fine_000", "ai_cluster_coarse_001"},
		Keywords([]string{"fine_000", "coarse_001"}, "ai"))
}

func TestValidPrefix(t *testing.T) {
	for _, p := range []string{"", "ai", "my_ai", "my-ai", "Cam2", "x_cluster_fine_1"} {
		assert.True(t, ValidPrefix(p), p)
	}
	for _, p := range []string{"a/b", "/"} {
		assert.False(t, ValidPrefix(p), p)
	}
}
