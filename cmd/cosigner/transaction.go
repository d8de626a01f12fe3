package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

var (
	txID          string
	txName        string
	txDescription string
	txBody        string
	txNetwork     string
	txCreator     string
	txObservers   []string
	txIsManual    bool
	txStatuses    []string

	txAddCmd = &cobra.Command{
		Use:   "add",
		Short: "register a new transaction",
		Long: "this command lets you register a serialized ledger transaction " +
			"(in hex format) to be co-signed and executed at its valid start",
		RunE: txAdd,
	}
	txShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "show a transaction",
		Long:  "this command prints the status and info of the given transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  txShow,
	}
	txListCmd = &cobra.Command{
		Use:   "list",
		Short: "list transactions by status",
		Long: "this command lists the transactions with one of the given " +
			"statuses, ordered by valid start",
		RunE: txList,
	}
	txRecheckCmd = &cobra.Command{
		Use:   "recheck <id>",
		Short: "recompute the status of a transaction",
		Long: "this command verifies the signatures collected so far against " +
			"the current account keys and updates the transaction status",
		Args: cobra.ExactArgs(1),
		RunE: txRecheck,
	}
	txExecuteCmd = &cobra.Command{
		Use:   "execute <id>",
		Short: "submit a transaction to the network now",
		Long: "this command submits the given transaction, used mostly for " +
			"manual transactions that are never submitted automatically",
		Args: cobra.ExactArgs(1),
		RunE: txExecute,
	}
	txCmd = &cobra.Command{
		Use:     "transaction",
		Aliases: []string{"tx"},
		Short:   "interact with the cosigner transactions",
	}
)

func init() {
	txAddCmd.Flags().StringVar(&txID, "id", "", "id of the transaction, random if not set")
	txAddCmd.Flags().StringVar(&txName, "name", "", "name of the transaction")
	txAddCmd.Flags().StringVar(&txDescription, "description", "", "description of the transaction")
	txAddCmd.Flags().StringVar(&txBody, "body", "", "hex encoded serialized ledger transaction")
	txAddCmd.Flags().StringVar(&txNetwork, "network", "", "mirror network the transaction belongs to")
	txAddCmd.Flags().StringVar(&txCreator, "creator", "", "id of the creator of the transaction")
	txAddCmd.Flags().StringSliceVar(&txObservers, "observers", nil, "ids of the users observing the transaction")
	txAddCmd.Flags().BoolVar(&txIsManual, "manual", false, "if set, the transaction is never submitted automatically")
	txAddCmd.MarkFlagRequired("body")
	txAddCmd.MarkFlagRequired("network")

	txListCmd.Flags().StringSliceVar(
		&txStatuses, "status",
		[]string{
			domain.StatusWaitingForSignatures.String(),
			domain.StatusWaitingForExecution.String(),
		},
		"statuses of the transactions to list",
	)

	txCmd.AddCommand(txAddCmd, txShowCmd, txListCmd, txRecheckCmd, txExecuteCmd)
}

func txAdd(_ *cobra.Command, _ []string) error {
	body, err := hex.DecodeString(strings.TrimPrefix(txBody, "0x"))
	if err != nil {
		return fmt.Errorf("invalid transaction body: %s", err)
	}
	if txID == "" {
		txID = uuid.New().String()
	}
	tx, err := domain.NewTransaction(domain.NewTransactionArgs{
		ID:            txID,
		Name:          txName,
		Description:   txDescription,
		Body:          body,
		IsManual:      txIsManual,
		MirrorNetwork: txNetwork,
		CreatorID:     txCreator,
		ObserverIDs:   txObservers,
	})
	if err != nil {
		return err
	}

	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	added, err := appCfg.RepoManager().TransactionRepository().AddTransaction(ctx, tx)
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	if _, err := appCfg.StatusService().RecheckTransaction(ctx, tx.ID); err != nil {
		return err
	}
	return showTransaction(ctx, appCfg.RepoManager(), tx.ID)
}

func txShow(_ *cobra.Command, args []string) error {
	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	return showTransaction(context.Background(), appCfg.RepoManager(), args[0])
}

func txList(_ *cobra.Command, _ []string) error {
	statuses := make([]domain.TransactionStatus, 0, len(txStatuses))
	for _, str := range txStatuses {
		status, ok := domain.ParseTransactionStatus(str)
		if !ok {
			return fmt.Errorf("unknown transaction status %s", str)
		}
		statuses = append(statuses, status)
	}

	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	txs, err := appCfg.RepoManager().TransactionRepository().GetTransactions(
		context.Background(), domain.TransactionFilter{
			Statuses: statuses,
			Window: domain.ValidStartWindow{
				To:            time.Now().AddDate(10, 0, 0),
				FromInclusive: true,
			},
		},
	)
	if err != nil {
		return err
	}

	infos := make([]transactionInfo, 0, len(txs))
	for _, tx := range txs {
		infos = append(infos, newTransactionInfo(tx))
	}
	return printJSON(infos)
}

func txRecheck(_ *cobra.Command, args []string) error {
	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if _, err := appCfg.StatusService().RecheckTransaction(ctx, args[0]); err != nil {
		return err
	}
	return showTransaction(ctx, appCfg.RepoManager(), args[0])
}

func txExecute(_ *cobra.Command, args []string) error {
	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if err := appCfg.SubmissionService().ExecuteTransaction(ctx, args[0]); err != nil {
		return err
	}
	return showTransaction(ctx, appCfg.RepoManager(), args[0])
}
