package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })

	Version = "1.2.3"
	Commit = "abc1234567890"
	Date = "2026-01-15"

	info := Info()
	assert.Contains(t, info, "crewdesk 1.2.3")
	assert.Contains(t, info, "commit: abc1234,")
	assert.Contains(t, info, "2026-01-15")
	assert.Contains(t, info, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestCurrent(t *testing.T) {
	b := Current()
	assert.Equal(t, Version, b.Version)
	assert.Equal(t, runtime.Version(), b.Go)
	assert.LessOrEqual(t, len(b.Commit), 7)
}

func TestShort(t *testing.T) {
	tests := []struct{ in, want string }{
		{"abcdefghij", "abcdefg"},
		{"1234567", "1234567"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, short(tt.in))
		})
	}
}
