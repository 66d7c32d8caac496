package persistence_test

import (
	"shopfloor/persistence"
	"testing"

	. "github.com/onsi/gomega"
)

func TestParseDatabaseConfigFromEnv(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should require DATABASE_URL", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "")
		t.Setenv("DATABASE_URL", "")
		c, err := persistence.ParseDatabaseConfigFromEnv()
		Expect(c).To(BeNil())
		Expect(err).To(MatchError("DATABASE_URL is required"))
	})

	t.Run("should reject unknown drivers", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "oracle")
		t.Setenv("DATABASE_URL", "x")
		c, err := persistence.ParseDatabaseConfigFromEnv()
		Expect(c).To(BeNil())
		Expect(err).To(MatchError("unsupported database driver 'oracle'"))
	})

	t.Run("should default to mysql", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "")
		t.Setenv("DATABASE_URL", "root:root@(127.0.0.1:3306)/shopfloor")
		c, err := persistence.ParseDatabaseConfigFromEnv()
		Expect(err).To(BeNil())
		Expect(*c).To(Equal(persistence.DatabaseConfig{DriverType: "mysql", DriverArgs: "root:root@(127.0.0.1:3306)/shopfloor"}))
	})

	t.Run("should accept sqlite3", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "sqlite3")
		t.Setenv("DATABASE_URL", "/tmp/shopfloor.db")
		c, err := persistence.ParseDatabaseConfigFromEnv()
		Expect(err).To(BeNil())
		Expect(c.DriverType).To(Equal(persistence.DriverSqlite))
	})
}

func TestPrepareMysqlDatabase(t *testing.T) {
	RegisterTestingT(t)

	Expect(persistence.PrepareMysqlDatabase("root:root@(127.0.0.1:3306)/")).
		To(MatchError("database name is missing in dsn"))
}
