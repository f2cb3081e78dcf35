package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/dbtypes"
)

// tables in foreign key order
var migrateTables = []string{
	"blocks",
	"block_account_updates",
	"accounts",
	"proofs",
	"aggregated_proofs",
	"aggregate_operations",
	"eth_parameters",
	"eth_operations",
	"eth_tx_hashes",
}

// tables with a generated id column
var serialTables = []string{"aggregate_operations", "eth_operations", "eth_tx_hashes"}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy a database into the configured database",
	Long:  "Copy all operator state from a source database into the database configured via --config (SQLite <-> PostgreSQL)",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().String("source-engine", "", "Source database engine (sqlite/pgsql)")
	migrateCmd.Flags().String("source-sqlite-path", "", "Source SQLite database path")
	migrateCmd.Flags().String("source-pgsql-host", "", "Source PostgreSQL host")
	migrateCmd.Flags().String("source-pgsql-port", "5432", "Source PostgreSQL port")
	migrateCmd.Flags().String("source-pgsql-user", "", "Source PostgreSQL user")
	migrateCmd.Flags().String("source-pgsql-pass", "", "Source PostgreSQL password")
	migrateCmd.Flags().String("source-pgsql-db", "", "Source PostgreSQL database name")
	migrateCmd.Flags().String("limit-tables", "", "Limit tables to migrate (comma separated list)")

	migrateCmd.MarkFlagRequired("source-engine")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	sourceEngine, _ := cmd.Flags().GetString("source-engine")
	limitTablesStr, _ := cmd.Flags().GetString("limit-tables")

	var sourceDb *sqlx.DB
	var err error
	switch sourceEngine {
	case "sqlite":
		sqlitePath, _ := cmd.Flags().GetString("source-sqlite-path")
		sourceDb, err = sqlx.Open("sqlite", sqlitePath)
	case "pgsql":
		host, _ := cmd.Flags().GetString("source-pgsql-host")
		port, _ := cmd.Flags().GetString("source-pgsql-port")
		user, _ := cmd.Flags().GetString("source-pgsql-user")
		pass, _ := cmd.Flags().GetString("source-pgsql-pass")
		name, _ := cmd.Flags().GetString("source-pgsql-db")
		sourceDb, err = sqlx.Open("pgx", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name))
	default:
		return fmt.Errorf("unknown source engine %q", sourceEngine)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to source db: %w", err)
	}
	defer sourceDb.Close()

	if _, err := openDatabase(cmd); err != nil {
		return err
	}
	defer db.MustCloseDB()

	tables := migrateTables
	if limitTablesStr != "" {
		limitTables := strings.Split(limitTablesStr, ",")
		tables = slices.DeleteFunc(slices.Clone(tables), func(table string) bool {
			return !slices.Contains(limitTables, table)
		})
	}

	ctx := context.Background()
	for _, table := range tables {
		count, err := migrateTable(ctx, sourceDb, table)
		if err != nil {
			return fmt.Errorf("migration of table %v failed: %w", table, err)
		}
		logrus.Infof("migrated table %v: %v rows", table, count)
	}

	if db.DbEngine == dbtypes.DBEnginePgsql {
		if err := resetSequences(ctx, tables); err != nil {
			return err
		}
	}

	logrus.Info("migration completed successfully")
	return nil
}

func migrateTable(ctx context.Context, sourceDb *sqlx.DB, table string) (int, error) {
	rows, err := sourceDb.QueryxContext(ctx, fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return 0, fmt.Errorf("failed to read from source: %w", err)
	}
	defer rows.Close()

	processed := 0
	err = db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		for rows.Next() {
			row := make(map[string]interface{})
			if err := rows.MapScan(row); err != nil {
				return fmt.Errorf("failed to scan row: %w", err)
			}

			cols := make([]string, 0, len(row))
			vals := make([]string, 0, len(row))
			args := make([]interface{}, 0, len(row))
			for col, val := range row {
				cols = append(cols, fmt.Sprintf("\"%s\"", col))
				vals = append(vals, fmt.Sprintf("$%d", len(args)+1))
				args = append(args, val)
			}

			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","), strings.Join(vals, ","))
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert row: %w", err)
			}
			processed++
		}
		return rows.Err()
	})
	return processed, err
}

func resetSequences(ctx context.Context, tables []string) error {
	return db.RunDBTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, table := range tables {
			if !slices.Contains(serialTables, table) {
				continue
			}
			query := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 0) + 1, false) FROM %s", table, table)
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("failed to reset id sequence of %v: %w", table, err)
			}
		}
		return nil
	})
}
