package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/internal/core/ports"
)

var (
	groupID          string
	groupDescription string
	groupAtomic      bool
	groupSequential  bool

	groupAddCmd = &cobra.Command{
		Use:   "add <tx-id> [<tx-id>...]",
		Short: "group existing transactions",
		Long: "this command lets you group transactions already registered so " +
			"that they are collated and submitted together. The order of the " +
			"given ids is the submission order of a sequential group",
		Args: cobra.MinimumNArgs(1),
		RunE: groupAdd,
	}
	groupShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "show a transaction group and its members",
		Args:  cobra.ExactArgs(1),
		RunE:  groupShow,
	}
	groupExecuteCmd = &cobra.Command{
		Use:   "execute <id>",
		Short: "submit all members of a group to the network now",
		Args:  cobra.ExactArgs(1),
		RunE:  groupExecute,
	}
	groupCmd = &cobra.Command{
		Use:   "group",
		Short: "interact with the cosigner transaction groups",
	}
)

func init() {
	groupAddCmd.Flags().StringVar(&groupID, "id", "", "id of the group, random if not set")
	groupAddCmd.Flags().StringVar(&groupDescription, "description", "", "description of the group")
	groupAddCmd.Flags().BoolVar(&groupAtomic, "atomic", false, "if set, either all members are submitted or none")
	groupAddCmd.Flags().BoolVar(&groupSequential, "sequential", false, "if set, members are submitted one after the other")

	groupCmd.AddCommand(groupAddCmd, groupShowCmd, groupExecuteCmd)
}

type groupInfo struct {
	ID           string            `json:"id"`
	Description  string            `json:"description,omitempty"`
	Atomic       bool              `json:"atomic"`
	Sequential   bool              `json:"sequential"`
	Transactions []transactionInfo `json:"transactions"`
}

func groupAdd(_ *cobra.Command, args []string) error {
	if groupID == "" {
		groupID = uuid.New().String()
	}
	group, err := domain.NewTransactionGroup(
		groupID, groupDescription, groupAtomic, groupSequential, args,
	)
	if err != nil {
		return err
	}

	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if _, err := appCfg.RepoManager().TransactionGroupRepository().AddGroup(
		ctx, group,
	); err != nil {
		return err
	}
	return showGroup(ctx, appCfg.RepoManager(), group.ID)
}

func groupShow(_ *cobra.Command, args []string) error {
	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	return showGroup(context.Background(), appCfg.RepoManager(), args[0])
}

func groupExecute(_ *cobra.Command, args []string) error {
	appCfg, cleanup, err := getAppConfig()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	if err := appCfg.SubmissionService().ExecuteTransactionGroup(
		ctx, args[0],
	); err != nil {
		return err
	}
	return showGroup(ctx, appCfg.RepoManager(), args[0])
}

func showGroup(ctx context.Context, rm ports.RepoManager, id string) error {
	group, err := rm.TransactionGroupRepository().GetGroup(ctx, id)
	if err != nil {
		return err
	}

	info := groupInfo{
		ID:           group.ID,
		Description:  group.Description,
		Atomic:       group.Atomic,
		Sequential:   group.Sequential,
		Transactions: make([]transactionInfo, 0, len(group.Items)),
	}
	for _, item := range group.Items {
		tx, err := rm.TransactionRepository().GetTransaction(ctx, item.TransactionID)
		if err != nil {
			return err
		}
		info.Transactions = append(info.Transactions, newTransactionInfo(tx))
	}
	return printJSON(info)
}

func showTransaction(ctx context.Context, rm ports.RepoManager, id string) error {
	tx, err := rm.TransactionRepository().GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(newTransactionInfo(tx))
}
