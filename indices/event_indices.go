package indices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"shopfloor/event"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

const EventIndexHandlerName = "eventIndexer"

var (
	EventIndexName = "shopfloor_events"

	ErrIndexNotConfigured = errors.New("search index is not configured")
)

// EventDocument is the analytics read model of one execution log record.
type EventDocument struct {
	event.EventRecord
}

// IndexEventHandle feeds the analytics index from the execution log and marks the record synced.
func IndexEventHandle(e *event.EventRecord) *event.EventHandleResult {
	if ActiveESClient == nil {
		return nil
	}
	if e.ID == 0 {
		return &event.EventHandleResult{HandlerIdentifier: EventIndexHandlerName,
			Message: fmt.Sprintf("event %s of %s was not persisted, skip indexing", e.EventCategory, e.SourceID)}
	}
	if err := indexEvent(context.Background(), e); err != nil {
		return &event.EventHandleResult{HandlerIdentifier: EventIndexHandlerName,
			Message: fmt.Sprintf("index event %s, %v", e.ID, err)}
	}
	return &event.EventHandleResult{Success: true, HandlerIdentifier: EventIndexHandlerName}
}

func indexEvent(ctx context.Context, e *event.EventRecord) error {
	if err := IndexFunc(ctx, EventIndexName, e.ID, EventDocument{EventRecord: *e}); err != nil {
		return err
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if db == nil {
		return nil
	}
	return event.MarkSynced(e, db)
}

type EventSearchQuery struct {
	BatchID       types.ID `form:"batchId"`
	SourceType    string   `form:"sourceType"`
	EventCategory string   `form:"eventCategory"`
	Text          string   `form:"q"`
	Size          int      `form:"size"`
}

// SearchEvents reads execution log records back from the analytics index, most recent first.
func SearchEvents(ctx context.Context, q *EventSearchQuery) ([]event.EventRecord, error) {
	filters := make([]H, 0, 4)
	if q.BatchID != 0 {
		filters = append(filters, H{"term": H{"batchId": q.BatchID.String()}})
	}
	if q.SourceType != "" {
		filters = append(filters, H{"term": H{"sourceType": q.SourceType}})
	}
	if q.EventCategory != "" {
		filters = append(filters, H{"term": H{"eventCategory": q.EventCategory}})
	}
	if q.Text != "" {
		filters = append(filters, H{"multi_match": H{"query": q.Text, "fields": []string{"sourceDesc", "creatorName"}}})
	}
	size := q.Size
	if size <= 0 || size > 1000 {
		size = 100
	}

	r, err := SearchFunc(ctx, EventIndexName, H{
		"size":  size,
		"query": H{"bool": H{"filter": filters}},
		"sort":  []H{{"timestamp": H{"order": "desc"}}},
	})
	if err != nil {
		return nil, err
	}
	records := make([]event.EventRecord, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		doc := EventDocument{}
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			logrus.WithError(err).WithField("id", hit.Id).Warn("skip undecodable event document")
			continue
		}
		records = append(records, doc.EventRecord)
	}
	return records, nil
}
