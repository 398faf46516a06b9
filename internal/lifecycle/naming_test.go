package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Naming(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "log-app-000001-snapshot", cfg.SearchableName("log-app-000001"))
	assert.True(t, cfg.IsSearchableName("log-app-000001-snapshot"))
	assert.False(t, cfg.IsSearchableName("log-app-000001"))

	assert.Equal(t, "log-app-000001", cfg.CorrespondingSnapshotName("log-app-000001-snapshot"))
	assert.Equal(t, "log-app-000001", cfg.CorrespondingSnapshotName("log-app-000001"))

	// the derivations invert each other
	for _, name := range []string{"log-a", "alert-2024.01.01", "x"} {
		assert.Equal(t, name, cfg.CorrespondingSnapshotName(cfg.SearchableName(name)))
	}
}

func TestConfig_ShouldManageIndex(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		want bool
	}{
		{"log-app-000001", true},
		{"alert-000003", true},
		{"logstash", true},
		{"log-app-write", false},
		{"alert-write", false},
		{"metrics-000001", false},
		{".ds-log-app", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.ShouldManageIndex(tt.name), tt.name)
		// repeated calls give the same answer
		assert.Equal(t, tt.want, cfg.ShouldManageIndex(tt.name), tt.name)
	}
}
