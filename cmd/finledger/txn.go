package main

import (
	"fmt"
	"io"
	"strings"

	"finledger/internal/ledger"
	"finledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// filterFlags are the transaction filter flags shared by list, csv and watch.
type filterFlags struct {
	from     string
	to       string
	category string
	txnType  string
	limit    int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Earliest date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Latest date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.category, "category", "", "Only this category")
	cmd.Flags().StringVar(&f.txnType, "type", "", "Only this type (expense, income, transfer)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum number of transactions (0 = all)")
}

func (f *filterFlags) filter() ledger.Filter {
	return ledger.Filter{
		From:     f.from,
		To:       f.to,
		Category: f.category,
		Type:     models.TxnType(f.txnType),
		Limit:    f.limit,
	}
}

var (
	txnAddAmount   string
	txnAddType     string
	txnAddDate     string
	txnAddCategory string
	txnAddDesc     string
	txnAddNote     string
	txnAddPayment  string
	txnAddTags     []string

	txnListFilters filterFlags
)

var txnCmd = &cobra.Command{
	Use:   "txn",
	Short: "Add, list and delete transactions",
}

var txnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction",
	Args:  cobra.NoArgs,
	RunE:  runTxnAdd,
}

var txnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTxnList,
}

var txnDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runTxnDelete,
}

func init() {
	txnAddCmd.Flags().StringVar(&txnAddAmount, "amount", "", "Amount, e.g. 499.50 (required)")
	txnAddCmd.Flags().StringVar(&txnAddType, "type", string(models.Expense), "expense, income or transfer")
	txnAddCmd.Flags().StringVar(&txnAddDate, "date", "", "Date as YYYY-MM-DD (required)")
	txnAddCmd.Flags().StringVar(&txnAddCategory, "category", "", "Category")
	txnAddCmd.Flags().StringVar(&txnAddDesc, "desc", "", "Description")
	txnAddCmd.Flags().StringVar(&txnAddNote, "note", "", "Note")
	txnAddCmd.Flags().StringVar(&txnAddPayment, "payment-method", "", "Payment method")
	txnAddCmd.Flags().StringSliceVar(&txnAddTags, "tag", nil, "Tag (repeatable)")
	_ = txnAddCmd.MarkFlagRequired("amount")
	_ = txnAddCmd.MarkFlagRequired("date")

	txnListFilters.register(txnListCmd)

	txnCmd.AddCommand(txnAddCmd)
	txnCmd.AddCommand(txnListCmd)
	txnCmd.AddCommand(txnDeleteCmd)
	rootCmd.AddCommand(txnCmd)
}

func runTxnAdd(cmd *cobra.Command, args []string) error {
	amount, err := decimal.NewFromString(txnAddAmount)
	if err != nil {
		return fmt.Errorf("invalid --amount %q: %w", txnAddAmount, err)
	}

	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()
	svc, closeBackend, err := env.ledger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeBackend()

	txn, err := svc.Add(cmd.Context(), models.Transaction{
		Amount:        amount,
		Type:          models.TxnType(txnAddType),
		Date:          txnAddDate,
		Category:      txnAddCategory,
		Description:   txnAddDesc,
		Note:          txnAddNote,
		PaymentMethod: txnAddPayment,
		Tags:          txnAddTags,
	})
	if err != nil {
		return err
	}
	return render(txn, func(w io.Writer) {
		fmt.Fprintf(w, "Added %s\n", txn.ID)
	})
}

func runTxnList(cmd *cobra.Command, args []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()
	svc, closeBackend, err := env.ledger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeBackend()

	txns, err := svc.List(cmd.Context(), txnListFilters.filter())
	if err != nil {
		return err
	}
	return render(txns, func(w io.Writer) { printTxns(w, txns) })
}

func runTxnDelete(cmd *cobra.Command, args []string) error {
	env, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()
	svc, closeBackend, err := env.ledger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeBackend()

	if err := svc.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	return render(map[string]string{"deleted": args[0]}, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted %s\n", args[0])
	})
}

func printTxns(w io.Writer, txns []models.Transaction) {
	if len(txns) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return
	}
	for _, t := range txns {
		label := t.Description
		if label == "" {
			label = t.Note
		}
		fmt.Fprintf(w, "%s  %-8s %12s  %-14s %s", t.Date, t.Type, t.Amount.StringFixed(2), t.Category, label)
		if len(t.Tags) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(t.Tags, ", "))
		}
		fmt.Fprintln(w)
	}
}
