package archive

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/obs"
)

const shutdownTimeout = 30 * time.Second

// Scheduler runs archive jobs on a cron spec.
type Scheduler struct {
	*cron.Cron
}

// cronLogger adapts logrus to the cron logger interface.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}

func NewScheduler() *Scheduler {
	logger := cronLogger{obs.Logger().WithField("component", "cron")}
	return &Scheduler{
		Cron: cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger))),
	}
}

// Schedule runs a.Run on spec. Each run gets its own timeout.
func (s *Scheduler) Schedule(spec string, a *Archiver, timeout time.Duration) (cron.EntryID, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return s.Cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := a.Run(ctx); err != nil {
			a.log.WithError(err).Error("activity archive failed")
		}
	})
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() {
	ctx, cancel := context.WithTimeout(s.Cron.Stop(), shutdownTimeout)
	defer cancel()
	<-ctx.Done()
}
