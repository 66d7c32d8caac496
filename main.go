package main

import (
	"shopfloor/app"
	"shopfloor/common"
	"shopfloor/indices"
	"shopfloor/servehttp"
	"shopfloor/session"

	"github.com/sirupsen/logrus"
)

func main() {
	app.LoadEnv("")

	rt, err := app.Start(common.GetServiceName())
	if err != nil {
		logrus.Fatalf("service start failed: %v", err)
	}
	defer rt.Close()

	if indices.ActiveESClient != nil {
		crontab, err := indices.StartCron(indices.DefaultSyncSchedule)
		if err != nil {
			logrus.Fatalf("failed to schedule indices sync: %v", err)
		}
		defer crontab.Stop()
	}

	engine := servehttp.NewEngine(session.SimpleAuthFilter())
	servehttp.StartHTTPServer(engine, ":"+rt.Config.Port)
	logrus.Info("[QUIT] service exiting")
}
