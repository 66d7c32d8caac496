package app

import (
	"context"
	"io"
	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/domain/assign"
	"shopfloor/domain/automation"
	"shopfloor/event"
	"shopfloor/indices"
	"shopfloor/infra/tracing"
	"shopfloor/notify"
	"shopfloor/persistence"
	"shopfloor/report"
	"shopfloor/session"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	InitTracerFunc  = tracing.InitGlobalTracer
	StartSourceFunc = startDataSource
)

// Runtime is the set of collaborators the engine runs with.
type Runtime struct {
	Config     *common.AppConfig
	DataSource *persistence.DataSourceManager

	closers []io.Closer
}

// LoadEnv loads envFile, or .env in the working directory when envFile is empty. A missing file is not an error.
func LoadEnv(envFile string) {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		logrus.Debugf(".env file not loaded: %v", err)
	}
}

// Start wires logging, tracing, the relational store and the optional sinks from the environment.
func Start(serviceName string) (*Runtime, error) {
	cfg := common.ParseAppConfigFromEnv()
	common.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)

	rt := &Runtime{Config: cfg}
	tracerCloser, err := InitTracerFunc(serviceName)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, tracerCloser)

	ds, err := StartSourceFunc()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.DataSource = ds
	persistence.ActiveDataSourceManager = ds

	if err := Configure(cfg); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Configure binds the engine collaborators selected by cfg.
func Configure(cfg *common.AppConfig) error {
	notify.Bootstrap(cfg)
	if err := report.Bootstrap(cfg); err != nil {
		return err
	}
	if len(cfg.ElasticsearchAddresses) > 0 {
		if _, err := indices.CreateClient(cfg.ElasticsearchAddresses); err != nil {
			return err
		}
	} else {
		indices.ActiveESClient = nil
	}

	automation.ExecutionTimeout = cfg.AutomationTimeout
	session.ResolveTokenFunc = assign.ResolveWorkerSession
	event.EventHandlers = EventHandlers(cfg)
	return nil
}

// EventHandlers lists the execution log observers enabled by cfg.
func EventHandlers(cfg *common.AppConfig) []event.EventHandler {
	handlers := []event.EventHandler{indices.IndexEventHandle}
	if cfg.AutomationObserveTransitions {
		handlers = append(handlers, automation.StageCompleteObserver)
	}
	return handlers
}

func startDataSource() (*persistence.DataSourceManager, error) {
	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if dbConfig.DriverType == persistence.DriverMysql {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			return nil, err
		}
	}
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		return nil, err
	}
	if err := Migrate(ds); err != nil {
		ds.Stop()
		return nil, err
	}
	return ds, nil
}

// Migrate creates or extends the engine tables.
func Migrate(ds *persistence.DataSourceManager) error {
	return ds.GormDB(context.Background()).AutoMigrate(
		&domain.Workflow{}, &domain.WorkflowStage{}, &domain.WorkflowStageTransition{},
		&domain.Batch{}, &domain.StageTransitionRecord{}, &domain.Task{}, &domain.Worker{},
		&domain.AutomationRule{}, &domain.AutomationExecution{}, &event.EventRecord{}).Error
}

func (rt *Runtime) Close() {
	if rt.DataSource != nil {
		rt.DataSource.Stop()
		if persistence.ActiveDataSourceManager == rt.DataSource {
			persistence.ActiveDataSourceManager = nil
		}
	}
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close runtime resource")
		}
	}
}
