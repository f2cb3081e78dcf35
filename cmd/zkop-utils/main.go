package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/types"
	"github.com/ethpandaops/zkoperator/utils"
)

var rootCmd = &cobra.Command{
	Use:   "zkop-utils",
	Short: "zkoperator utilities",
	Long:  "Maintenance utilities for the zkoperator including database migration, genesis setup and progress statistics",
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the config file, if empty string defaults will be used")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug mode")
}

// loadConfig reads the config file given by the --config flag and opens the configured database.
func loadConfig(cmd *cobra.Command) (*types.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := &types.Config{}
	if err := utils.ReadConfig(cfg, configPath); err != nil {
		return nil, err
	}
	utils.Config = cfg
	return cfg, nil
}

func openDatabase(cmd *cobra.Command) (*types.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	db.MustInitDB(&cfg.Database)
	if err := db.ApplyEmbeddedDbSchema(db.SchemaLatest); err != nil {
		db.MustCloseDB()
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
