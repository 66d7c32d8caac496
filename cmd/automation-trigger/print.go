package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fundwit/go-commons/types"
)

func printSchedule(w io.Writer, trigger *ScheduleTrigger) {
	next := trigger.Next()
	ids := make([]types.ID, 0, len(next))
	for id := range next {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	trigger.mutex.Lock()
	defer trigger.mutex.Unlock()
	fmt.Fprintf(w, "%d schedule rules\n", len(ids))
	for _, id := range ids {
		entry := trigger.entries[id]
		fmt.Fprintf(w, "%s\t%s\t%s\tnext %s\n", id, entry.name, entry.spec, next[id].Format(time.RFC3339))
	}
}
