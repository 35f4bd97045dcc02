package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {

	tests := []struct {
		name    string
		level   string
		want    logrus.Level
		wantErr bool
	}{
		{name: "info", level: "info", want: logrus.InfoLevel},
		{name: "debug upper case", level: "DEBUG", want: logrus.DebugLevel},
		{name: "trace", level: "trace", want: logrus.TraceLevel},
		{name: "invalid", level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Level = tt.level

			log, closer, err := build(cfg, &bytes.Buffer{})

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			defer closer.Close()

			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestFieldsWritten(t *testing.T) {

	var buf bytes.Buffer

	log, closer, err := build(DefaultConfig(), &buf)
	require.NoError(t, err)
	defer closer.Close()

	log.WithField("frame", 30).Info("Pipeline diagnostics")
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "Pipeline diagnostics")
	assert.Contains(t, out, "frame:30")
	assert.NotContains(t, out, "hidden")
}

func TestFileOutput(t *testing.T) {

	file := filepath.Join(t.TempDir(), "postura.log")

	cfg := DefaultConfig()
	cfg.File = file

	var buf bytes.Buffer

	log, closer, err := build(cfg, &buf)
	require.NoError(t, err)

	log.Warn("written twice")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	assert.Contains(t, string(data), "written twice")
	assert.Contains(t, buf.String(), "written twice")
}
