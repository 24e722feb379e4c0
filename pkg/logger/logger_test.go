package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countHook struct{ n int }

func (h *countHook) Levels() []logrus.Level { return []logrus.Level{logrus.WarnLevel} }
func (h *countHook) Fire(*logrus.Entry) error {
	h.n++
	return nil
}

func TestInitWritesFileAndHooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scalper.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, MaxSize: 1, NoColor: true}))
	t.Cleanup(func() { logrus.SetOutput(os.Stderr) })

	h := &countHook{}
	AddHook(h)

	Warnf("⚠️ [Test] hello %d", 1)
	logrus.WithField("module", "test").Warn("from std logger")
	Debugf("debug line")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[Test] hello 1")
	assert.Contains(t, string(data), "from std logger")
	assert.Contains(t, string(data), "debug line")
	assert.Equal(t, 2, h.n)
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "verbose", NoColor: true}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
}
