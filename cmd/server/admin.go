package main

import (
	"fmt"

	"coinledger/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := bootstrap()
		if err != nil {
			return err
		}
		defer flush()

		// Open 内部已执行迁移
		_, closeDB, err := openDB(cfg)
		if err != nil {
			return err
		}
		closeDB()

		zap.L().Info("迁移完成", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}

var reconcileBatchSize int

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare ledger sums with stored balances once",
	Long: `Walk every account and check that the PAID ledger sum equals
paid_balance and the FREE ledger sum equals the remaining amount of
unsettled credit batches. Exits non-zero when any drift is found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := bootstrap()
		if err != nil {
			return err
		}
		defer flush()

		db, closeDB, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer closeDB()

		drifts, err := service.NewReconcileService(db).ReconcileAll(cmd.Context(), reconcileBatchSize)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			fmt.Fprintf(cmd.OutOrStdout(), "user=%d type=%s ledger=%d stored=%d\n", d.UserID, d.BalanceType, d.Ledger, d.Stored)
		}
		if len(drifts) > 0 {
			return fmt.Errorf("发现 %d 处不一致", len(drifts))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileBatchSize, "batch-size", 200, "accounts per page")
}
