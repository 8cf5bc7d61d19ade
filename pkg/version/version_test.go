package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/embedtree/pkg/version"
)

func TestInitBinaryVersion(t *testing.T) {
	version.InitBinaryVersion()

	assert.NotEmpty(t, version.Version)
	assert.NotEmpty(t, version.Commit)
	assert.Contains(t, version.String(), version.Version)
	assert.Contains(t, version.String(), "commit: "+version.Commit)
}
