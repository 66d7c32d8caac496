package indices

import (
	"context"

	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultSyncSchedule = "0 0 23 * * ?"

// StartCron runs a full sync of the execution log on schedule, a six field cron expression.
func StartCron(schedule string) (*cron.Cron, error) {
	crontab := cron.New(cron.WithSeconds())
	if _, err := crontab.AddFunc(schedule, func() {
		if err := IndicesFullSyncFunc(context.Background()); err != nil {
			logrus.WithError(err).Warn("scheduled indices sync failed")
		}
	}); err != nil {
		return nil, err
	}
	crontab.Start()
	return crontab, nil
}
