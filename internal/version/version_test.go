package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo, ok bool) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, ok }
	t.Cleanup(func() { readBuildInfo = orig })
}

func TestGet_Defaults(t *testing.T) {
	withBuildInfo(t, nil, false)

	info := Get("feedback-backend")
	assert.Equal(t, "feedback-backend", info.Service)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "dev", info.Commit)
	assert.Equal(t, "unknown", info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.False(t, info.Modified)
}

func TestGet_FallsBackToVCSStamp(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-04-01T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}}, true)

	info := Get("adm")
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-04-01T10:00:00Z", info.BuildTime)
	assert.True(t, info.Modified)
	assert.Contains(t, info.String(), "modified")
}

func TestGet_LinkerFlagsWin(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "ffffffffffff"},
	}}, true)

	origCommit := Commit
	Commit = "abc123"
	t.Cleanup(func() { Commit = origCommit })

	assert.Equal(t, "abc123", Get("x").Commit)
}
