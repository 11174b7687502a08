package profiling

import (
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
)

func TestStart_DisabledStartsNothing(t *testing.T) {
	p, err := Start(Config{}, "index-guard", logger.NewNop())

	require.NoError(t, err)
	assert.Nil(t, p.pprof)
	assert.Nil(t, p.pyroscope)
	assert.NoError(t, p.Stop())
}

func TestProfiler_NilStop(t *testing.T) {
	var p *Profiler
	assert.NoError(t, p.Stop())
}

func TestPyroscopeConfig(t *testing.T) {
	cfg := Config{Environment: "staging"}
	cfg.SetDefaults()

	pc := pyroscopeConfig(cfg, "index-guard")

	assert.Equal(t, "north-cloud.index-guard", pc.ApplicationName)
	assert.Equal(t, defaultPyroscopeURL, pc.ServerAddress)
	assert.Equal(t, "staging", pc.Tags["environment"])
	assert.Contains(t, pc.ProfileTypes, pyroscope.ProfileCPU)
}
