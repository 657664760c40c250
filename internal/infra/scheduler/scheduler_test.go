package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type countingTicker struct{ calls chan struct{} }

func (c countingTicker) Tick(context.Context) (int, error) {
	c.calls <- struct{}{}
	return 1, nil
}

type noopPurger struct{}

func (noopPurger) PurgeBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestReportScheduler_RejectsBadSpec(t *testing.T) {
	s := NewReportScheduler(time.UTC, testLogger())
	assert.Error(t, s.AddServerPoll("every minute", countingTicker{}))
	assert.NoError(t, s.AddPurge(noopPurger{}))
	assert.Len(t, s.cronEngine.Entries(), 1)
}

func TestReportScheduler_RunsServerPoll(t *testing.T) {
	s := NewReportScheduler(time.UTC, testLogger())
	ticker := countingTicker{calls: make(chan struct{}, 4)}
	assert.NoError(t, s.AddServerPoll("@every 1s", ticker))

	s.Start()
	defer s.Stop()

	select {
	case <-ticker.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("server poll did not run")
	}
}
