package log

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	l, closer, err := Setup(Config{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.NoError(t, closer.Close())

	l, closer, err = Setup(Config{Level: "debug", Structured: true})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
	assert.NoError(t, closer.Close())

	_, _, err = Setup(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nbdtarget.log")
	l, closer, err := Setup(Config{File: path})
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, closer.Close())
	assert.FileExists(t, path)
}

type failCloser struct{ called bool }

func (f *failCloser) Close() error {
	f.called = true
	return errors.New("nope")
}

func TestCloseAndLogError(t *testing.T) {
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	Set(l)
	defer Set(nil)

	c := &failCloser{}
	CloseAndLogError(c, "thing")
	assert.True(t, c.called)
	require.Len(t, hook.AllEntries(), 1)
	assert.Contains(t, hook.LastEntry().Message, "thing")

	CloseAndLogError(nil, "nothing")
	assert.Len(t, hook.AllEntries(), 2)
}
