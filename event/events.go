package event

import (
	"context"
	"errors"
	"shopfloor/bizerror"
	"shopfloor/idgen"
	"shopfloor/persistence"
	"shopfloor/session"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

var (
	idWorker = idgen.NewWorker()

	QueryEventsFunc = QueryEvents
)

// CreateEvent appends a record to the execution log through db.
func CreateEvent(e Event, identity *session.Identity, timestamp time.Time, db *gorm.DB) (*EventRecord, error) {
	if identity != nil {
		e.CreatorID = identity.ID
		e.CreatorName = identity.Name
	}
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	record := EventRecord{
		ID:        idgen.NextID(idWorker),
		Event:     e,
		Synced:    false,
		Timestamp: timestamp.Round(time.Microsecond),
	}
	if err := EventPersistCreateFunc(&record, db); err != nil {
		return nil, err
	}
	return &record, nil
}

func QueryEvents(query EventQuery, s *session.Session) ([]EventRecord, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	q := db.Model(&EventRecord{})
	if query.SourceType != "" {
		q = q.Where("source_type = ?", query.SourceType)
	}
	if query.SourceID != 0 {
		q = q.Where("source_id = ?", query.SourceID)
	}
	if query.BatchID != 0 {
		q = q.Where("batch_id = ?", query.BatchID)
	}
	if query.EventCategory != "" {
		q = q.Where("event_category = ?", query.EventCategory)
	}
	records := []EventRecord{}
	if err := q.Order("timestamp ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

var (
	RecordFunc = Record

	errNoDataSource = errors.New("no active data source")
)

// Record appends e to the execution log in its own statement and dispatches it to the event handlers.
// A failed append is logged and the event is still dispatched.
func Record(ctx context.Context, e Event, identity *session.Identity) *EventRecord {
	now := time.Now()
	var record *EventRecord
	err := errNoDataSource
	if db := persistence.ActiveDataSourceManager.GormDB(ctx); db != nil {
		record, err = CreateEvent(e, identity, now, db)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"category": e.EventCategory, "source": e.SourceID}).
			Warn("failed to append execution log")
		record = &EventRecord{Event: e, Timestamp: now.Round(time.Microsecond)}
		if identity != nil {
			record.CreatorID = identity.ID
			record.CreatorName = identity.Name
		}
	}
	InvokeHandlersFunc(record)
	return record
}
