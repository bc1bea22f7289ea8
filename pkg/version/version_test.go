package version_test

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DECODEproject/iotdashboard/pkg/version"
)

func TestVersionString(t *testing.T) {
	expected := fmt.Sprintf("UNKNOWN (%s/%s). build date: UNKNOWN", runtime.GOOS, runtime.GOARCH)
	assert.Equal(t, expected, version.VersionString())
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "iotdashboard/UNKNOWN", version.UserAgent())
}
