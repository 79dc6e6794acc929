package version

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, version, commit, buildTime string, info *debug.BuildInfo) {
	t.Helper()
	oldVersion, oldCommit, oldTime, oldRead := Version, GitCommit, BuildTime, readBuildInfo
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readBuildInfo = oldVersion, oldCommit, oldTime, oldRead
	})

	Version, GitCommit, BuildTime = version, commit, buildTime
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func TestLdflagsWin(t *testing.T) {
	withBuild(t, "v1.2.0", "0123456789abcdef", "2026-03-01T10:00:00Z", &debug.BuildInfo{
		Main:     debug.Module{Version: "v0.0.1"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffffff"}},
	})

	info := GetBuildInfo()
	assert.Equal(t, "v1.2.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, "v1.2.0 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())
}

func TestFallsBackToVCSSettings(t *testing.T) {
	withBuild(t, "dev", "unknown", "unknown", &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abcdef0123456789"},
			{Key: "vcs.time", Value: "2026-05-04T08:30:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	assert.Equal(t, "dev-abcdef0", GetVersion())
	assert.Equal(t, "abcdef0123456789", GetGitCommit())
	assert.Equal(t, time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC), GetBuildTime())
	assert.Equal(t, "dev-abcdef0", GetShortVersion())
	assert.True(t, IsDirty())
	assert.False(t, IsRelease())
}

func TestNoBuildInfo(t *testing.T) {
	withBuild(t, "dev", "unknown", "not a time", nil)

	assert.Equal(t, "dev", GetVersion())
	assert.Equal(t, "unknown", GetGitCommit())
	assert.True(t, GetBuildTime().IsZero())
	assert.Equal(t, "dev", GetShortVersion())
	assert.False(t, IsDirty())
}
