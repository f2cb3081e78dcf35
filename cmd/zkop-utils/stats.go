package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/zkoperator/db"
	"github.com/ethpandaops/zkoperator/ethsender"
	"github.com/ethpandaops/zkoperator/optypes"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print operator progress",
	Long:  "Print the sealed, committed, verified and executed block heights and the pending eth operations",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	if _, err := openDatabase(cmd); err != nil {
		return err
	}
	defer db.MustCloseDB()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	sealed, err := db.GetLastSealedBlockNumber(ctx)
	if err != nil {
		return err
	}
	executed, err := db.GetLastExecutedBlockNumber(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "last sealed block:   %v\n", sealed)
	fmt.Fprintf(out, "last executed block: %v\n", executed)

	fmt.Fprintln(out, "aggregated operations:")
	counts, err := db.GetAggregateOperationCounts(ctx)
	if err != nil {
		return err
	}
	for _, actionType := range optypes.AggregatedActionTypes {
		lastBlock, err := db.GetLastAffectedBlock(ctx, actionType.String())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %-26v count %-6v last block %v\n", actionType, counts[actionType.String()], lastBlock)
	}

	stats, err := ethsender.NewDatabase().LoadStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "eth operations: %v (commit %v, proof %v, execute %v)\n", stats.SavedOperations, stats.CommitOps, stats.ProofOps, stats.ExecuteOps)

	unconfirmed, err := db.GetUnconfirmedEthOperations(ctx)
	if err != nil {
		return err
	}
	for _, op := range unconfirmed {
		fmt.Fprintf(out, "  pending eth operation %v: %v nonce %v deadline %v gas price %v\n", op.ID, op.ActionType, op.Nonce, op.LastDeadlineBlock, op.LastUsedGasPrice)
	}
	return nil
}
