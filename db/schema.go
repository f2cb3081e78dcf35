package db

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/ethpandaops/zkoperator/dbtypes"
)

//go:embed schema/pgsql/*.sql
var EmbedPgsqlSchema embed.FS

//go:embed schema/sqlite/*.sql
var EmbedSqliteSchema embed.FS

const (
	// SchemaLatest migrates to the newest embedded version.
	SchemaLatest int64 = -2
	// SchemaNext applies a single pending migration.
	SchemaNext int64 = -1
)

// ApplyEmbeddedDbSchema migrates the writer database to version, or to SchemaLatest / SchemaNext.
func ApplyEmbeddedDbSchema(version int64) error {
	var engineDialect string
	var schemaDirectory string
	switch DbEngine {
	case dbtypes.DBEnginePgsql:
		goose.SetBaseFS(EmbedPgsqlSchema)
		engineDialect = "postgres"
		schemaDirectory = "schema/pgsql"
	case dbtypes.DBEngineSqlite:
		goose.SetBaseFS(EmbedSqliteSchema)
		engineDialect = "sqlite3"
		schemaDirectory = "schema/sqlite"
	default:
		return fmt.Errorf("unknown database engine")
	}
	if err := goose.SetDialect(engineDialect); err != nil {
		return err
	}

	switch version {
	case SchemaLatest:
		return goose.Up(writerDb.DB, schemaDirectory, goose.WithAllowMissing())
	case SchemaNext:
		return goose.UpByOne(writerDb.DB, schemaDirectory, goose.WithAllowMissing())
	default:
		return goose.UpTo(writerDb.DB, schemaDirectory, version, goose.WithAllowMissing())
	}
}
