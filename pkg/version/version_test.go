package version

import (
	"encoding/json"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withBuild sets ldflags values and module build info for one test.
func withBuild(t *testing.T, ver, commit, date string, bi *debug.BuildInfo) {
	t.Helper()
	oldVersion, oldCommit, oldDate, oldRead := Version, Commit, Date, readBuildInfo
	t.Cleanup(func() {
		Version, Commit, Date, readBuildInfo = oldVersion, oldCommit, oldDate, oldRead
	})
	Version, Commit, Date = ver, commit, date
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
}

func goInstallBuild(mainVersion string) *debug.BuildInfo {
	return &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/Aman-CERP/chatlens", Version: mainVersion},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "4f1c2a9e0b7d5c3a1f0e9d8c7b6a5f4e3d2c1b0a"},
			{Key: "vcs.time", Value: "2026-03-14T09:26:53Z"},
		},
	}
}

func TestGetInfo_LdflagsWin(t *testing.T) {
	// Given: a release build with ldflags and module info
	withBuild(t, "1.4.0", "abc1234", "2026-04-01T00:00:00Z", goInstallBuild("v1.3.9"))

	// When
	info := GetInfo()

	// Then: ldflags values are reported unchanged
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "abc1234", info.Commit)
	assert.Equal(t, "2026-04-01T00:00:00Z", info.Date)
}

func TestGetInfo_FallsBackToModuleBuildInfo(t *testing.T) {
	// Given: a binary from 'go install' without ldflags
	withBuild(t, "dev", "unknown", "unknown", goInstallBuild("v1.3.9"))

	// When
	info := GetInfo()

	// Then: the module version and VCS stamp fill the gaps
	assert.Equal(t, "1.3.9", info.Version)
	assert.Equal(t, "4f1c2a9", info.Commit)
	assert.Equal(t, "2026-03-14T09:26:53Z", info.Date)
	assert.Equal(t, "1.3.9", Short())
	assert.Equal(t, "chatlens/1.3.9", UserAgent())
}

func TestGetInfo_LocalBuildStaysDev(t *testing.T) {
	tests := []struct {
		name string
		bi   *debug.BuildInfo
	}{
		{"go build in a checkout", goInstallBuild("(devel)")},
		{"no build info", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, "dev", "unknown", "unknown", tt.bi)

			assert.Equal(t, "dev", Short())
			assert.Equal(t, "chatlens/dev", UserAgent())
		})
	}
}

func TestString_DescribesBuild(t *testing.T) {
	withBuild(t, "1.4.0", "abc1234", "2026-04-01T00:00:00Z", nil)

	str := String()

	assert.Contains(t, str, "chatlens 1.4.0 (commit: abc1234, built: 2026-04-01T00:00:00Z, go: go")
	assert.Regexp(t, `, \w+/\w+\)$`, str)
}

func TestGetInfo_JSONFieldNames(t *testing.T) {
	withBuild(t, "1.4.0", "abc1234", "2026-04-01T00:00:00Z", nil)

	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "1.4.0", parsed["version"])
	assert.Equal(t, "abc1234", parsed["commit"])
	for _, key := range []string{"date", "go_version", "os", "arch"} {
		assert.NotEmpty(t, parsed[key], key)
	}
}
