package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/zkoperator/dbtypes"
)

// ReaderDb serves dashboards and stats. State reads that drive decisions and all transactions use writerDb.
// Both point to the same pool for sqlite.
var DbEngine dbtypes.DBEngineType
var ReaderDb *sqlx.DB
var writerDb *sqlx.DB
var writerMutex sync.Mutex

var logger = logrus.StandardLogger().WithField("module", "db")

// Ping checks that the writer connection is usable.
func Ping(ctx context.Context) error {
	if writerDb == nil {
		return fmt.Errorf("database not initialized")
	}
	return writerDb.PingContext(ctx)
}

func MustCloseDB() {
	err := writerDb.Close()
	if err != nil {
		logger.Errorf("error closing writer db connection: %v", err)
	}
	if ReaderDb != writerDb {
		err = ReaderDb.Close()
		if err != nil {
			logger.Errorf("error closing reader db connection: %v", err)
		}
	}
	writerDb = nil
	ReaderDb = nil
}

// RunDBTransaction runs handler in a writer transaction and commits when it returns nil.
// Sqlite writers are serialised.
func RunDBTransaction(ctx context.Context, handler func(tx *sqlx.Tx) error) error {
	if DbEngine == dbtypes.DBEngineSqlite {
		writerMutex.Lock()
		defer writerMutex.Unlock()
	}

	tx, err := writerDb.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting db transactions: %w", err)
	}

	defer tx.Rollback()

	err = handler(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error committing db transaction: %w", err)
	}

	return nil
}

func EngineQuery(queryMap map[dbtypes.DBEngineType]string) string {
	if queryMap[DbEngine] != "" {
		return queryMap[DbEngine]
	}
	return queryMap[dbtypes.DBEngineAny]
}
