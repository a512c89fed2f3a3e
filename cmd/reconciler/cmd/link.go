package cmd

import (
	"context"
	"fmt"
	"os"

	"receivables-reconciler/internal/reconciler"
	"receivables-reconciler/internal/store"

	"github.com/spf13/cobra"
)

// Flags for the link subcommands
var (
	linkDB          string
	linkSale        string
	linkTransaction string
	linkInstallment int
)

// linkCmd groups the manual link operations
var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Create or remove manual reconciliation links",
	Long: `Link records a human decision that a transaction settles a sale,
bypassing the scorer. Manual links are stored with full confidence and
feed the adaptive scorer once enough of them exist.

Examples:
  reconciler link create --db ledger.db --sale S-1001 --transaction tx-42
  reconciler link create --db ledger.db --sale S-1002 --transaction tx-43 --installment 2
  reconciler link remove --db ledger.db --sale S-1001 --transaction tx-42`,
}

var linkCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Manually link a transaction to a sale or installment",

	PreRunE: validateLinkFlags,
	RunE:    runLinkCreate,
}

var linkRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove an existing link and reopen the transaction",

	PreRunE: validateLinkFlags,
	RunE:    runLinkRemove,
}

func init() {
	rootCmd.AddCommand(linkCmd)
	linkCmd.AddCommand(linkCreateCmd)
	linkCmd.AddCommand(linkRemoveCmd)

	for _, sub := range []*cobra.Command{linkCreateCmd, linkRemoveCmd} {
		sub.Flags().StringVar(&linkDB, "db", "", "path to the SQLite ledger database (required)")
		sub.Flags().StringVar(&linkSale, "sale", "", "sale id (required)")
		sub.Flags().StringVar(&linkTransaction, "transaction", "", "transaction id (required)")
		sub.MarkFlagRequired("db")
		sub.MarkFlagRequired("sale")
		sub.MarkFlagRequired("transaction")
	}
	linkCreateCmd.Flags().IntVar(&linkInstallment, "installment", 0, "installment number for installment sales")
}

func validateLinkFlags(cmd *cobra.Command, args []string) error {
	if linkDB == "" {
		return fmt.Errorf("db is required")
	}
	if linkSale == "" {
		return fmt.Errorf("sale is required")
	}
	if linkTransaction == "" {
		return fmt.Errorf("transaction is required")
	}
	if linkInstallment < 0 {
		return fmt.Errorf("installment must be positive")
	}
	return nil
}

func runLinkCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	st, err := openLinkStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var installment *int
	if linkInstallment > 0 {
		installment = &linkInstallment
	}

	writer := reconciler.NewLinkWriter(st)
	link, err := writer.CreateManualLink(ctx, linkSale, linkTransaction, installment)
	if err != nil {
		return HandleCLIError(err)
	}

	if installment != nil {
		fmt.Fprintf(os.Stdout, "Linked sale %s installment %d to transaction %s\n", link.SaleID, *installment, link.TransactionID)
	} else {
		fmt.Fprintf(os.Stdout, "Linked sale %s to transaction %s\n", link.SaleID, link.TransactionID)
	}
	return nil
}

func runLinkRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	st, err := openLinkStore()
	if err != nil {
		return err
	}
	defer st.Close()

	writer := reconciler.NewLinkWriter(st)
	if err := writer.RemoveLink(ctx, linkSale, linkTransaction); err != nil {
		return HandleCLIError(err)
	}

	fmt.Fprintf(os.Stdout, "Removed link between sale %s and transaction %s\n", linkSale, linkTransaction)
	return nil
}

func openLinkStore() (*store.SQLiteStore, error) {
	log, err := setupLogger()
	if err != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(linkDB, log)
	if err != nil {
		return nil, HandleCLIError(err)
	}
	return st, nil
}
