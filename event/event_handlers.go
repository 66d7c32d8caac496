package event

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EventHandler observes appended execution log records. It returns nil when the record is not its concern.
type EventHandler func(e *EventRecord) *EventHandleResult

type EventHandleResult struct {
	Success           bool
	Message           string
	HandlerIdentifier string
}

var EventHandlers []EventHandler

var InvokeHandlersFunc = invokeHandlers

// invokeHandlers runs every handler in order. A failing or panicking handler never stops the others.
func invokeHandlers(record *EventRecord) []EventHandleResult {
	results := []EventHandleResult{}
	fields := logrus.Fields{"category": record.EventCategory, "source": record.SourceID, "batch": record.BatchID}
	for i, handler := range EventHandlers {
		r := safeHandle(i, handler, record)
		if r == nil {
			continue
		}
		results = append(results, *r)

		if r.Success {
			logrus.WithFields(fields).WithField("handler", r.HandlerIdentifier).Debug("event handled. ", r.Message)
		} else {
			logrus.WithFields(fields).WithField("handler", r.HandlerIdentifier).Error("event handle error. ", r.Message)
		}
	}
	return results
}

func safeHandle(index int, handler EventHandler, record *EventRecord) (r *EventHandleResult) {
	defer func() {
		if ret := recover(); ret != nil {
			r = &EventHandleResult{HandlerIdentifier: fmt.Sprintf("handler#%d", index), Message: fmt.Sprintf("panic: %v", ret)}
		}
	}()
	return handler(record)
}
