package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrentDefaults(t *testing.T) {
	build := Current()
	require.NotEmpty(t, build.Version)
	require.NotEmpty(t, build.Commit)
	require.NotEmpty(t, build.Date)
}

func TestBuildFormatting(t *testing.T) {
	build := Build{Version: "v1.2.0", Commit: "abc123", Date: "2026-01-02"}

	require.Equal(t, "version=v1.2.0 commit=abc123 date=2026-01-02", build.String())
	require.Equal(t, "abc123", build.Fields()["commit"])
	require.Equal(t, "2026-01-02", build.Fields()["build_date"])
}
