package app

import (
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"shopfloor/common"
	"shopfloor/domain/automation"
	"shopfloor/indices"
	"shopfloor/notify"
	"shopfloor/persistence"
	"shopfloor/report"
	"shopfloor/testinfra"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

type countingCloser struct {
	closed int
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func handlerNames(cfg *common.AppConfig) []uintptr {
	var ptrs []uintptr
	for _, h := range EventHandlers(cfg) {
		ptrs = append(ptrs, reflect.ValueOf(h).Pointer())
	}
	return ptrs
}

func TestEventHandlers(t *testing.T) {
	RegisterTestingT(t)

	indexer := reflect.ValueOf(indices.IndexEventHandle).Pointer()
	observer := reflect.ValueOf(automation.StageCompleteObserver).Pointer()

	Expect(handlerNames(&common.AppConfig{})).To(Equal([]uintptr{indexer}))
	Expect(handlerNames(&common.AppConfig{AutomationObserveTransitions: true})).To(Equal([]uintptr{indexer, observer}))
}

func TestConfigure(t *testing.T) {
	RegisterTestingT(t)
	timeout := automation.ExecutionTimeout
	defer func() {
		automation.ExecutionTimeout = timeout
		indices.ActiveESClient = nil
		notify.ActiveSink = nil
	}()

	t.Run("should bind configured collaborators", func(t *testing.T) {
		err := Configure(&common.AppConfig{
			NotifyRatePerSecond:    2,
			ElasticsearchAddresses: []string{"http://127.0.0.1:9200"},
			AutomationTimeout:      5 * time.Second,
		})
		Expect(err).To(BeNil())
		Expect(indices.ActiveESClient).ToNot(BeNil())
		Expect(notify.ActiveSink).ToNot(BeNil())
		Expect(report.ReportBucket).To(BeNil())
		Expect(automation.ExecutionTimeout).To(Equal(5 * time.Second))
	})

	t.Run("should unbind the search index without addresses", func(t *testing.T) {
		Expect(Configure(&common.AppConfig{NotifyRatePerSecond: 1})).To(BeNil())
		Expect(indices.ActiveESClient).To(BeNil())
	})
}

func TestStart(t *testing.T) {
	RegisterTestingT(t)
	initTracer := InitTracerFunc
	defer func() {
		InitTracerFunc = initTracer
		StartSourceFunc = startDataSource
		indices.ActiveESClient = nil
		notify.ActiveSink = nil
	}()

	t.Run("should start and close the runtime", func(t *testing.T) {
		tracer := &countingCloser{}
		InitTracerFunc = func(serviceName string) (io.Closer, error) {
			Expect(serviceName).To(Equal("shopfloor"))
			return tracer, nil
		}
		var testDatabase *testinfra.TestDatabase
		StartSourceFunc = func() (*persistence.DataSourceManager, error) {
			testDatabase = testinfra.StartTestDatabase("shopfloor")
			return testDatabase.DS, Migrate(testDatabase.DS)
		}
		defer func() { testinfra.StopTestDatabase(testDatabase) }()

		rt, err := Start("shopfloor")
		Expect(err).To(BeNil())
		Expect(persistence.ActiveDataSourceManager).To(Equal(rt.DataSource))
		Expect(rt.Config.AutomationTimeout).To(Equal(30 * time.Second))

		rt.Close()
		Expect(tracer.closed).To(Equal(1))
		Expect(persistence.ActiveDataSourceManager).To(BeNil())
	})

	t.Run("should release the tracer when the store fails", func(t *testing.T) {
		tracer := &countingCloser{}
		InitTracerFunc = func(serviceName string) (io.Closer, error) {
			return tracer, nil
		}
		StartSourceFunc = func() (*persistence.DataSourceManager, error) {
			return nil, errors.New("DATABASE_URL is required")
		}

		rt, err := Start("shopfloor")
		Expect(rt).To(BeNil())
		Expect(err).To(MatchError("DATABASE_URL is required"))
		Expect(tracer.closed).To(Equal(1))
	})
}

func TestLoadEnv(t *testing.T) {
	RegisterTestingT(t)

	dir, err := ioutil.TempDir("", "shopfloor-env")
	Expect(err).To(BeNil())
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "test.env")
	Expect(ioutil.WriteFile(file, []byte("SHOPFLOOR_TEST_ENV_KEY=from-file\n"), 0600)).To(BeNil())
	t.Setenv("SHOPFLOOR_TEST_ENV_KEY", "")
	os.Unsetenv("SHOPFLOOR_TEST_ENV_KEY")

	LoadEnv(file)
	Expect(os.Getenv("SHOPFLOOR_TEST_ENV_KEY")).To(Equal("from-file"))

	LoadEnv(filepath.Join(dir, "missing.env"))
}
