package persistence

import (
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	DriverMysql  = "mysql"
	DriverSqlite = "sqlite3"
)

type DatabaseConfig struct {
	DriverType string
	DriverArgs string
}

// ParseDatabaseConfigFromEnv DATABASE_DRIVER=mysql|sqlite3, DATABASE_URL=driver specific dsn
func ParseDatabaseConfigFromEnv() (*DatabaseConfig, error) {
	driverType := strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))
	if driverType == "" {
		driverType = DriverMysql
	}
	if driverType != DriverMysql && driverType != DriverSqlite {
		return nil, errors.New("unsupported database driver '" + driverType + "'")
	}
	driverArgs := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if driverArgs == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return &DatabaseConfig{DriverType: driverType, DriverArgs: driverArgs}, nil
}

// PrepareMysqlDatabase creates the database named in the dsn when it does not exist.
func PrepareMysqlDatabase(driverArgs string) error {
	cfg, err := mysql.ParseDSN(driverArgs)
	if err != nil {
		return err
	}
	databaseName := cfg.DBName
	if databaseName == "" {
		return errors.New("database name is missing in dsn")
	}
	cfg.DBName = ""

	db, err := sql.Open(DriverMysql, cfg.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("CREATE DATABASE IF NOT EXISTS `" + databaseName + "` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci")
	return err
}
