package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

var (
	sweepRecheck bool

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "expire stale transactions",
		Long: "this command moves to EXPIRED every transaction not executed " +
			"whose valid start is past by more than the grace period. With " +
			"--recheck, the pending ones are rechecked first",
		RunE: sweep,
	}
)

func init() {
	sweepCmd.Flags().BoolVar(
		&sweepRecheck, "recheck", false,
		"recheck all pending transactions before expiring the stale ones",
	)
}

func sweep(_ *cobra.Command, _ []string) error {
	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	statusSvc := appCfg.StatusService()
	if sweepRecheck {
		if _, err := statusSvc.RecheckWindow(ctx, domain.ValidStartWindow{
			To:            time.Now().AddDate(10, 0, 0),
			FromInclusive: true,
		}); err != nil {
			return err
		}
	}

	expired, err := statusSvc.ExpireTransactions(ctx)
	if err != nil {
		return err
	}
	infos := make([]transactionInfo, 0, len(expired))
	for _, tx := range expired {
		infos = append(infos, newTransactionInfo(tx))
	}
	return printJSON(infos)
}
