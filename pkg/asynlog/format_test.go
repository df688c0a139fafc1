package asynlog

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRendersSortedFields(t *testing.T) {
	f := NewFormatter(time.RFC3339)
	entry := &logrus.Entry{
		Time:    time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		Message: "port opened",
		Data: logrus.Fields{
			"port": "P1",
			"addr": 3,
		},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T15:04:05Z port opened addr=3 port=P1\n", string(out))
}

func TestFormatWithoutFields(t *testing.T) {
	f := NewFormatter(time.RFC3339)
	entry := &logrus.Entry{
		Time:    time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		Message: "starting",
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T15:04:05Z starting\n", string(out))
}
