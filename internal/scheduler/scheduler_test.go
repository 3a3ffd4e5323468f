package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMaintainer struct {
	calls atomic.Int32
	err   error
}

func (m *countingMaintainer) Maintain(ctx context.Context) error {
	m.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	return m.err
}

func quietLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	return log
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler("every tuesday", &countingMaintainer{}, quietLogger(io.Discard))
	assert.Error(t, err)
}

func TestScheduler_RunOnce(t *testing.T) {
	m := &countingMaintainer{}
	var buf bytes.Buffer
	s, err := NewScheduler("@daily", m, quietLogger(&buf))
	require.NoError(t, err)

	s.RunOnce()
	assert.Equal(t, int32(1), m.calls.Load())
	assert.Contains(t, buf.String(), "Maintenance finished")
}

func TestScheduler_RunOnce_Error(t *testing.T) {
	m := &countingMaintainer{err: errors.New("vacuum failed")}
	var buf bytes.Buffer
	s, err := NewScheduler("0 3 * * *", m, quietLogger(&buf))
	require.NoError(t, err)

	s.RunOnce()
	assert.Contains(t, buf.String(), "vacuum failed")
}

func TestScheduler_StartStop(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewScheduler("@hourly", &countingMaintainer{}, quietLogger(&buf))
	require.NoError(t, err)

	s.Start()
	s.Stop()
	assert.Contains(t, buf.String(), "Maintenance scheduled")
}
