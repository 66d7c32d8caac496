package testinfra

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"shopfloor/persistence"
	"strings"

	"github.com/google/uuid"
)

type TestDatabase struct {
	TestDatabaseName string
	DS               *persistence.DataSourceManager

	file string
}

// StartTestDatabase creates an isolated database. TEST_MYSQL_SERVICE=root:root@(127.0.0.1:3306) selects mysql,
// otherwise a temporary sqlite3 file is used.
func StartTestDatabase(baseName string) *TestDatabase {
	databaseName := baseName + "_test_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	if mysqlSvc := os.Getenv("TEST_MYSQL_SERVICE"); mysqlSvc != "" {
		return startMysqlTestDatabase(mysqlSvc, databaseName)
	}

	file := filepath.Join(os.TempDir(), databaseName+".db")
	dbConfig := &persistence.DatabaseConfig{DriverType: persistence.DriverSqlite, DriverArgs: file + "?_loc=auto"}
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		defer ds.Stop()
		log.Fatalf("database connection failed %v\n", err)
	}
	return &TestDatabase{TestDatabaseName: databaseName, DS: ds, file: file}
}

func startMysqlTestDatabase(mysqlSvc, databaseName string) *TestDatabase {
	dbConfig := &persistence.DatabaseConfig{
		DriverType: persistence.DriverMysql,
		DriverArgs: mysqlSvc + "/" + databaseName + "?charset=utf8mb4&parseTime=True&loc=Local&timeout=5s",
	}

	// create database (no conflict)
	if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
		log.Fatalf("failed to prepare database %v\n", err)
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		defer ds.Stop()
		log.Fatalf("database connection failed %v\n", err)
	}

	return &TestDatabase{TestDatabaseName: databaseName, DS: ds}
}

func StopTestDatabase(testDatabase *TestDatabase) {
	if testDatabase == nil || testDatabase.DS == nil {
		return
	}
	if testDatabase.file != "" {
		testDatabase.DS.Stop()
		if err := os.Remove(testDatabase.file); err != nil {
			log.Println("failed to remove test database: " + testDatabase.file)
		}
		return
	}

	if db := testDatabase.DS.GormDB(context.Background()); db != nil {
		if err := db.Exec("DROP DATABASE " + testDatabase.TestDatabaseName).Error; err != nil {
			log.Println("failed to drop test database: " + testDatabase.TestDatabaseName)
		} else {
			log.Println("test database " + testDatabase.TestDatabaseName + " dropped")
		}
	}
	testDatabase.DS.Stop()
}
