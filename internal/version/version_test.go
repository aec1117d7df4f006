package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func stamp(t *testing.T, version, major, minor, patch, commit string) {
	t.Helper()
	saved := []string{Version, Major, Minor, Patch, Built, GitCommit}
	t.Cleanup(func() {
		Version, Major, Minor, Patch, Built, GitCommit = saved[0], saved[1], saved[2], saved[3], saved[4], saved[5]
	})
	Version, Major, Minor, Patch, GitCommit = version, major, minor, patch, commit
	Built = "2026-03-01T09:00:00Z"
}

func TestCurrentUsesStampedValues(t *testing.T) {
	stamp(t, "1.4.0", "1", "4", "0", "0123456789abcdef")

	b := Current()
	assert.Equal(t, "1.4.0", b.Version)
	assert.Equal(t, [3]int{1, 4, 0}, [3]int{b.Major, b.Minor, b.Patch})
	assert.Equal(t, "2026-03-01T09:00:00Z", b.Built)
	assert.Equal(t, "0123456789abcdef", b.GitCommit)
	assert.NotEmpty(t, b.GoVersion)
}

func TestCurrentReadsBadNumbersAsZero(t *testing.T) {
	stamp(t, "1.4.0", "one", "4", "", "")
	b := Current()
	assert.Zero(t, b.Major)
	assert.Zero(t, b.Patch)
	assert.Equal(t, 4, b.Minor)
}

func TestBuildString(t *testing.T) {
	cases := []struct {
		build Build
		want  string
	}{
		{Build{Version: "dev", GitCommit: "abc"}, "dev"},
		{Build{}, "dev"},
		{Build{Version: "1.4.0"}, "1.4.0"},
		{Build{Version: "1.4.0", GitCommit: "abc"}, "1.4.0 (abc)"},
		{Build{Version: "1.4.0", GitCommit: "0123456789abcdef"}, "1.4.0 (0123456)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.build.String())
	}
}
