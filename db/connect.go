package db

import (
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ethpandaops/zkoperator/dbtypes"
	"github.com/ethpandaops/zkoperator/types"
	"github.com/ethpandaops/zkoperator/utils"
)

type poolLimits struct {
	maxOpen     int
	maxIdle     int
	maxIdleTime time.Duration
	maxLifetime time.Duration
}

func newPoolLimits(maxOpen int, maxIdle int) poolLimits {
	if maxOpen == 0 {
		maxOpen = 50
	}
	if maxIdle == 0 {
		maxIdle = 10
	}
	if maxOpen < maxIdle {
		maxIdle = maxOpen
	}
	return poolLimits{maxOpen: maxOpen, maxIdle: maxIdle}
}

func checkDbConn(dbConn *sqlx.DB, dataBaseName string) {
	// PingContext is not honoured by all drivers, so the timeout is enforced with a timer
	dbConnectionTimeout := time.NewTimer(15 * time.Second)

	go func() {
		<-dbConnectionTimeout.C
		logger.Fatalf("timeout while connecting to %s", dataBaseName)
	}()

	err := dbConn.Ping()
	if err != nil {
		logger.Fatalf("unable to Ping %s: %s", dataBaseName, err)
	}

	dbConnectionTimeout.Stop()
}

func mustOpenPool(driver string, dsn string, name string, limits poolLimits) *sqlx.DB {
	dbConn, err := sqlx.Open(driver, dsn)
	if err != nil {
		utils.LogFatal(err, fmt.Sprintf("error opening %v", name), 0)
	}

	checkDbConn(dbConn, name)
	dbConn.SetConnMaxIdleTime(limits.maxIdleTime)
	dbConn.SetConnMaxLifetime(limits.maxLifetime)
	dbConn.SetMaxOpenConns(limits.maxOpen)
	dbConn.SetMaxIdleConns(limits.maxIdle)
	return dbConn
}

func mustInitSqlite(config *types.SqliteDatabaseConfig) *sqlx.DB {
	limits := newPoolLimits(config.MaxOpenConns, config.MaxIdleConns)

	logger.Infof("initializing sqlite connection to %v with %v/%v conn limit", config.File, limits.maxIdle, limits.maxOpen)
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", config.File)
	dbConn := mustOpenPool("sqlite", dsn, "sqlite database", limits)
	dbConn.MustExec("PRAGMA journal_mode = WAL")
	return dbConn
}

func pgsqlDsn(config *types.PgsqlDatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", config.Username, config.Password, config.Host, config.Port, config.Name)
}

func mustInitPgsql(config *types.PgsqlDatabaseConfig, name string) *sqlx.DB {
	limits := newPoolLimits(config.MaxOpenConns, config.MaxIdleConns)
	limits.maxIdleTime = 30 * time.Second
	limits.maxLifetime = 60 * time.Second

	logger.Infof("initializing pgsql %v connection to %v with %v/%v conn limit", name, config.Host, limits.maxIdle, limits.maxOpen)
	return mustOpenPool("pgx", pgsqlDsn(config), fmt.Sprintf("pgsql %v database", name), limits)
}

// MustInitDB opens the configured engine. The pgsql writer falls back to the reader settings
// when pgsqlWriter has no host.
func MustInitDB(config *types.DatabaseConfig) {
	switch config.Engine {
	case "sqlite":
		if config.Sqlite == nil {
			logger.Fatalf("missing sqlite database config")
		}
		DbEngine = dbtypes.DBEngineSqlite
		writerDb = mustInitSqlite(config.Sqlite)
		ReaderDb = writerDb
	case "pgsql":
		if config.Pgsql == nil {
			logger.Fatalf("missing pgsql database config")
		}
		DbEngine = dbtypes.DBEnginePgsql
		ReaderDb = mustInitPgsql(config.Pgsql, "reader")
		if config.PgsqlWriter != nil && config.PgsqlWriter.Host != "" {
			writerDb = mustInitPgsql((*types.PgsqlDatabaseConfig)(config.PgsqlWriter), "writer")
		} else {
			writerDb = ReaderDb
		}
	default:
		logger.Fatalf("unknown database engine type: %s", config.Engine)
	}
}
