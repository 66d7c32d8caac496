package indices

import (
	"context"
	"fmt"
	"shopfloor/bizerror"
	"shopfloor/event"
	"shopfloor/persistence"
	"shopfloor/session"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	lock    sync.Mutex
	running bool

	IndicesFullSyncFunc    = IndicesFullSync
	ScheduleNewSyncRunFunc = ScheduleNewSyncRun

	SyncBatchSize = 500
)

// ScheduleNewSyncRun starts a background sync of the unsynced execution log, false means one is running.
func ScheduleNewSyncRun(s *session.Session) (bool, error) {
	if !s.IsPrivileged() {
		return false, bizerror.ErrForbidden
	}

	lock.Lock()
	if running {
		lock.Unlock()
		return false, nil
	}
	running = true
	lock.Unlock()

	waitRunning := sync.WaitGroup{}
	waitRunning.Add(1)
	go func() {
		waitRunning.Done()
		defer func() {
			lock.Lock()
			running = false
			lock.Unlock()
		}()
		if err := IndicesFullSyncFunc(context.Background()); err != nil {
			logrus.WithError(err).Warn("indices sync aborted")
		}
	}()
	waitRunning.Wait()
	return true, nil
}

// IndicesFullSync indexes every unsynced execution log record, oldest first.
func IndicesFullSync(ctx context.Context) (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			e, ok := ret.(error)
			if ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
	}()
	if ActiveESClient == nil {
		return ErrIndexNotConfigured
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)

	var lastID uint64
	indexed := 0
	for {
		var records []event.EventRecord
		if err := db.Where("synced = ? AND id > ?", false, lastID).Order("id ASC").Limit(SyncBatchSize).
			Find(&records).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			logrus.Infof("indices sync: %d events indexed, there are no more events to index", indexed)
			return nil
		}
		for i := range records {
			lastID = uint64(records[i].ID)
			if err := indexEvent(ctx, &records[i]); err != nil {
				logrus.WithError(err).WithField("id", records[i].ID).Warn("indices sync: failed to index event")
				continue
			}
			indexed++
		}
	}
}
