package indices

import (
	"context"
	"encoding/json"
	"errors"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/event"
	"shopfloor/persistence"
	"shopfloor/session"
	"shopfloor/testinfra"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

var testDatabase *testinfra.TestDatabase

func setup(t *testing.T) {
	testDatabase = testinfra.StartTestDatabase("shopfloor")
	assert.Nil(t, testDatabase.DS.GormDB(context.Background()).AutoMigrate(&event.EventRecord{}).Error)
	persistence.ActiveDataSourceManager = testDatabase.DS
	_, err := CreateClient([]string{"http://127.0.0.1:9200"})
	assert.Nil(t, err)
}

func teardown(t *testing.T) {
	ActiveESClient = nil
	IndexFunc = Index
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func createEvent(sourceID types.ID) *event.EventRecord {
	r, err := event.CreateEvent(event.Event{SourceID: sourceID, SourceType: event.SourceTypeBatch, SourceDesc: "b1",
		BatchID: sourceID, EventCategory: event.EventCategoryBatchCreated}, nil, time.Now(),
		testDatabase.DS.GormDB(context.Background()))
	Expect(err).To(BeNil())
	return r
}

func syncedIDs() []types.ID {
	var records []event.EventRecord
	Expect(testDatabase.DS.GormDB(context.Background()).Where("synced = ?", true).Order("id ASC").Find(&records).Error).To(BeNil())
	ids := []types.ID{}
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestIndexEventHandle(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should do nothing without a search index", func(t *testing.T) {
		ActiveESClient = nil
		Expect(IndexEventHandle(&event.EventRecord{ID: 1})).To(BeNil())
	})

	t.Run("should index persisted events and mark them synced", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		var indexedIDs []types.ID
		IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			Expect(index).To(Equal("shopfloor_events"))
			Expect(doc.(EventDocument).ID).To(Equal(id))
			indexedIDs = append(indexedIDs, id)
			return nil
		}
		r := createEvent(10)
		result := IndexEventHandle(r)
		Expect(*result).To(Equal(event.EventHandleResult{Success: true, HandlerIdentifier: EventIndexHandlerName}))
		Expect(indexedIDs).To(Equal([]types.ID{r.ID}))
		Expect(syncedIDs()).To(Equal([]types.ID{r.ID}))

		result = IndexEventHandle(&event.EventRecord{Event: event.Event{SourceID: 10, EventCategory: event.EventCategoryBatchCreated}})
		Expect(result.Success).To(BeFalse())
		Expect(result.Message).To(Equal("event BATCH_CREATED of 10 was not persisted, skip indexing"))
	})

	t.Run("should report index failures and leave the event unsynced", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			return errors.New("cluster red")
		}
		r := createEvent(10)
		result := IndexEventHandle(r)
		Expect(result.Success).To(BeFalse())
		Expect(result.Message).To(Equal("index event " + r.ID.String() + ", cluster red"))
		Expect(syncedIDs()).To(BeEmpty())
	})
}

func TestIndicesFullSync(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should index every unsynced event across pages", func(t *testing.T) {
		defer teardown(t)
		setup(t)
		batchSize := SyncBatchSize
		SyncBatchSize = 2
		defer func() { SyncBatchSize = batchSize }()

		var created []types.ID
		for i := 0; i < 5; i++ {
			created = append(created, createEvent(types.ID(10+i)).ID)
		}
		Expect(event.MarkSynced(&event.EventRecord{ID: created[1]}, testDatabase.DS.GormDB(context.Background()))).To(BeNil())

		var indexed []types.ID
		IndexFunc = func(ctx context.Context, index string, id types.ID, doc interface{}) error {
			indexed = append(indexed, id)
			if id == created[3] {
				return errors.New("rejected")
			}
			return nil
		}
		Expect(IndicesFullSync(context.Background())).To(BeNil())
		Expect(len(indexed)).To(Equal(4))
		Expect(len(syncedIDs())).To(Equal(4))
	})

	t.Run("should fail without a search index", func(t *testing.T) {
		ActiveESClient = nil
		Expect(IndicesFullSync(context.Background())).To(Equal(ErrIndexNotConfigured))
	})
}

func TestScheduleNewSyncRun(t *testing.T) {
	RegisterTestingT(t)

	t.Run("only privileged callers can schedule a sync run", func(t *testing.T) {
		success, err := ScheduleNewSyncRun(testinfra.BuildSession(1, session.RoleWorker))
		Expect(err).To(Equal(bizerror.ErrForbidden))
		Expect(success).To(BeFalse())
	})

	t.Run("should run one sync at a time", func(t *testing.T) {
		release := make(chan struct{})
		finished := make(chan struct{})
		IndicesFullSyncFunc = func(ctx context.Context) error {
			<-release
			close(finished)
			return nil
		}
		defer func() { IndicesFullSyncFunc = IndicesFullSync }()

		s := testinfra.BuildSession(1, session.RoleManager)
		success, err := ScheduleNewSyncRun(s)
		Expect(err).To(BeNil())
		Expect(success).To(BeTrue())

		success, err = ScheduleNewSyncRun(s)
		Expect(err).To(BeNil())
		Expect(success).To(BeFalse())

		close(release)
		<-finished
		Eventually(func() bool {
			lock.Lock()
			defer lock.Unlock()
			return running
		}).Should(BeFalse())
	})
}

func TestSearchEvents(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should build filters and decode hits", func(t *testing.T) {
		var capturedQuery interface{}
		SearchFunc = func(ctx context.Context, index string, query interface{}) (*ESSearchResult, error) {
			capturedQuery = query
			doc, _ := json.Marshal(EventDocument{EventRecord: event.EventRecord{ID: 5, Event: event.Event{
				SourceID: 7, SourceType: event.SourceTypeBatch, EventCategory: event.EventCategoryStageTransitioned,
				Details: domain.JSONMap{"toStage": "qc"}}}})
			return &ESSearchResult{Hits: ESSearchHits{Hits: []ESSearchHit{
				{Id: "5", Source: doc}, {Id: "6", Source: json.RawMessage(`"broken"`)},
			}}}, nil
		}
		defer func() { SearchFunc = Search }()

		records, err := SearchEvents(context.Background(), &EventSearchQuery{BatchID: 7, EventCategory: "STAGE_TRANSITIONED"})
		Expect(err).To(BeNil())
		Expect(len(records)).To(Equal(1))
		Expect(records[0].ID).To(Equal(types.ID(5)))
		Expect(records[0].Details["toStage"]).To(Equal("qc"))

		body, _ := json.Marshal(capturedQuery)
		Expect(string(body)).To(MatchJSON(`{"size":100,
			"query":{"bool":{"filter":[{"term":{"batchId":"7"}},{"term":{"eventCategory":"STAGE_TRANSITIONED"}}]}},
			"sort":[{"timestamp":{"order":"desc"}}]}`))
	})
}
