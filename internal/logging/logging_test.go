package logging

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatterTimestamp(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "alpha.wav",
	}

	out, err := NewFormatter().Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09 14:05:07:123456 level=info msg=alpha.wav\n", string(out))
}

func TestStamp(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 42000, time.UTC)
	assert.Equal(t, "2024-03-09 14:05:07:000042", Stamp(at))
}

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuebox.log")
	closer, err := Setup(Options{Level: "debug", File: path})
	require.NoError(t, err)
	t.Cleanup(func() { logrus.SetOutput(os.Stderr) })

	logrus.Debug("New audio device was set: USB")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`level=debug msg="New audio device was set: USB"`), string(data))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestSetupInvalidLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	require.NoError(t, err)
	t.Cleanup(func() { logrus.SetOutput(os.Stderr) })

	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestSetupBadFile(t *testing.T) {
	_, err := Setup(Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
