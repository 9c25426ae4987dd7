package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/service"
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Manage invoices",
	Long:  `Generate invoices from time entries, list them, and track their status.`,
}

var invoicesGenerateCmd = &cobra.Command{
	Use:   "generate <client_id_or_name> [entry_id...]",
	Short: "Generate an invoice from time entries",
	Long: `Generate a numbered draft invoice for a client. Pass entry ids in the order
the lines should appear, or --all-unbilled to bill every stopped, billable,
uninvoiced entry on the client's projects in start order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()
		now := appInstance.Clock.Now()

		client, err := appInstance.Catalog.ResolveClient(ctx, owner, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve client: %w", err)
		}

		req := service.GenerateRequest{ClientID: client.ID}

		allUnbilled, _ := cmd.Flags().GetBool("all-unbilled")
		switch {
		case allUnbilled && len(args) > 1:
			return fmt.Errorf("pass entry ids or --all-unbilled, not both")
		case allUnbilled:
			if req.TimeEntryIDs, err = unbilledEntryIDs(ctx, client.ID); err != nil {
				return err
			}
			if len(req.TimeEntryIDs) == 0 {
				fmt.Printf("No unbilled entries for %s\n", client.Name)
				return nil
			}
		default:
			for _, ref := range args[1:] {
				id, err := resolveEntryID(ctx, ref)
				if err != nil {
					return err
				}
				req.TimeEntryIDs = append(req.TimeEntryIDs, id)
			}
		}

		if cmd.Flags().Changed("issue") {
			s, _ := cmd.Flags().GetString("issue")
			if req.IssueDate, err = parseDate(s, now); err != nil {
				return fmt.Errorf("invalid issue date: %w", err)
			}
		}
		if cmd.Flags().Changed("due") {
			s, _ := cmd.Flags().GetString("due")
			if req.DueDate, err = parseDate(s, now); err != nil {
				return fmt.Errorf("invalid due date: %w", err)
			}
		}
		if cmd.Flags().Changed("tax") {
			s, _ := cmd.Flags().GetString("tax")
			rate, err := parseTaxRate(s)
			if err != nil {
				return err
			}
			req.TaxRate = &rate
		}
		if cmd.Flags().Changed("terms") {
			terms, _ := cmd.Flags().GetString("terms")
			req.PaymentTerms = &terms
		}
		req.Notes, _ = cmd.Flags().GetString("notes")

		invoice, err := appInstance.Invoices.Generate(ctx, owner, req)
		if err != nil {
			return fmt.Errorf("failed to generate invoice: %w", err)
		}

		fmt.Printf("✓ Invoice %s generated for %s\n", invoice.InvoiceNumber, client.Name)
		fmt.Printf("  Lines: %d\n", len(invoice.LineItems))
		fmt.Printf("  Total: %s\n", formatMoney(invoice.Total))
		fmt.Printf("  Due: %s\n", invoice.DueDate.Format(domain.DateLayout))

		return nil
	},
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()

		filter := domain.InvoiceFilter{}
		filter.Offset, _ = cmd.Flags().GetInt("offset")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		if cmd.Flags().Changed("client") {
			ref, _ := cmd.Flags().GetString("client")
			client, err := appInstance.Catalog.ResolveClient(ctx, owner, ref)
			if err != nil {
				return fmt.Errorf("failed to resolve client: %w", err)
			}
			filter.ClientID = &client.ID
		}

		if cmd.Flags().Changed("status") {
			s, _ := cmd.Flags().GetString("status")
			status, err := domain.ParseInvoiceStatus(s)
			if err != nil {
				return err
			}
			filter.Status = &status
		}

		invoices, err := appInstance.Invoices.List(ctx, owner, filter)
		if err != nil {
			return fmt.Errorf("failed to list invoices: %w", err)
		}

		if len(invoices) == 0 {
			fmt.Println("No invoices found")
			return nil
		}

		clients, err := clientNames(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%-10s %-20s %-11s %-11s %-14s %-8s\n", "Number", "Client", "Issued", "Due", "Total", "Status")
		fmt.Println("-------------------------------------------------------------------------------")

		for _, invoice := range invoices {
			fmt.Printf("%-10s %-20s %-11s %-11s %14s %-8s\n",
				invoice.InvoiceNumber,
				truncate(clients[invoice.ClientID], 20),
				invoice.IssueDate.Format(domain.DateLayout),
				invoice.DueDate.Format(domain.DateLayout),
				formatMoney(invoice.Total),
				invoice.Status,
			)
		}

		return nil
	},
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show <number_or_id>",
	Short: "Show an invoice with its line items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		invoice, err := resolveInvoice(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}

		printInvoice(invoice)
		return nil
	},
}

var invoicesUpdateCmd = &cobra.Command{
	Use:   "update <number_or_id>",
	Short: "Update invoice dates, tax, notes, or terms",
	Long:  `Update header fields of an unpaid invoice. Changing the tax rate recomputes the tax and total.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		now := appInstance.Clock.Now()

		invoice, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}

		var patch domain.InvoicePatch
		if cmd.Flags().Changed("issue") {
			s, _ := cmd.Flags().GetString("issue")
			issue, err := parseDate(s, now)
			if err != nil {
				return fmt.Errorf("invalid issue date: %w", err)
			}
			patch.IssueDate = &issue
		}
		if cmd.Flags().Changed("due") {
			s, _ := cmd.Flags().GetString("due")
			due, err := parseDate(s, now)
			if err != nil {
				return fmt.Errorf("invalid due date: %w", err)
			}
			patch.DueDate = &due
		}
		if cmd.Flags().Changed("tax") {
			s, _ := cmd.Flags().GetString("tax")
			rate, err := parseTaxRate(s)
			if err != nil {
				return err
			}
			patch.TaxRate = &rate
		}
		if cmd.Flags().Changed("notes") {
			notes, _ := cmd.Flags().GetString("notes")
			patch.Notes = &notes
		}
		if cmd.Flags().Changed("terms") {
			terms, _ := cmd.Flags().GetString("terms")
			patch.PaymentTerms = &terms
		}

		updated, err := appInstance.Invoices.Update(ctx, appInstance.Owner(), invoice.ID, patch)
		if err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}

		fmt.Printf("✓ Invoice %s updated\n", updated.InvoiceNumber)
		fmt.Printf("  Total: %s\n", formatMoney(updated.Total))
		return nil
	},
}

var invoicesStatusCmd = &cobra.Command{
	Use:   "status <number_or_id> <draft|sent|paid|overdue>",
	Short: "Set the status of an invoice",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		status, err := domain.ParseInvoiceStatus(args[1])
		if err != nil {
			return err
		}

		invoice, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}

		updated, err := appInstance.Invoices.SetStatus(ctx, appInstance.Owner(), invoice.ID, status)
		if err != nil {
			return fmt.Errorf("failed to set status: %w", err)
		}

		fmt.Printf("✓ Invoice %s is now %s\n", updated.InvoiceNumber, updated.Status)
		return nil
	},
}

var invoicesDeleteCmd = &cobra.Command{
	Use:   "delete <number_or_id>",
	Short: "Delete an unpaid invoice and release its entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		invoice, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}

		if err := appInstance.Invoices.Delete(ctx, appInstance.Owner(), invoice.ID); err != nil {
			return fmt.Errorf("failed to delete invoice: %w", err)
		}

		fmt.Printf("✓ Invoice %s deleted, %d entries released\n", invoice.InvoiceNumber, len(invoice.LineItems))
		return nil
	},
}

var invoicesPDFCmd = &cobra.Command{
	Use:   "pdf <number_or_id>",
	Short: "Write an invoice PDF",
	Long:  `Render an invoice to PDF. The file goes to the configured output directory unless -o is given.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		invoice, err := resolveInvoice(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get invoice: %w", err)
		}

		data, _, err := appInstance.Invoices.RenderPDF(ctx, appInstance.Owner(), invoice.ID)
		if err != nil {
			return fmt.Errorf("failed to render invoice: %w", err)
		}

		path, _ := cmd.Flags().GetString("output")
		if path == "" {
			path = filepath.Join(appInstance.Config.Invoice.OutputDir, invoice.InvoiceNumber+".pdf")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write PDF: %w", err)
		}

		fmt.Printf("✓ Invoice %s written to %s\n", invoice.InvoiceNumber, path)
		return nil
	},
}

var invoicesMarkOverdueCmd = &cobra.Command{
	Use:   "mark-overdue",
	Short: "Mark sent invoices past their due date as overdue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		marked, err := appInstance.Invoices.MarkOverdue(ctx, appInstance.Owner(), appInstance.Clock.Now())
		if err != nil {
			return fmt.Errorf("failed to mark overdue invoices: %w", err)
		}

		if len(marked) == 0 {
			fmt.Println("No invoices are overdue")
			return nil
		}

		for _, invoice := range marked {
			fmt.Printf("✓ %s overdue since %s (%s)\n",
				invoice.InvoiceNumber, invoice.DueDate.Format(domain.DateLayout), formatMoney(invoice.Total))
		}
		return nil
	},
}

func printInvoice(invoice *domain.Invoice) {
	fmt.Printf("Invoice %s (%s)\n", invoice.InvoiceNumber, invoice.Status)
	if invoice.Client != nil {
		fmt.Printf("  Client: %s\n", invoice.Client.Name)
		if invoice.Client.Company != "" {
			fmt.Printf("  Company: %s\n", invoice.Client.Company)
		}
	}
	fmt.Printf("  Issued: %s\n", invoice.IssueDate.Format(domain.DateLayout))
	fmt.Printf("  Due: %s\n", invoice.DueDate.Format(domain.DateLayout))
	if invoice.PaidAt != nil {
		fmt.Printf("  Paid: %s\n", formatLocal(*invoice.PaidAt))
	}
	fmt.Println()

	fmt.Printf("%-40s %8s %12s %14s\n", "Description", "Hours", "Rate", "Amount")
	fmt.Println("-------------------------------------------------------------------------------")
	for _, item := range invoice.LineItems {
		fmt.Printf("%-40s %8s %12s %14s\n",
			truncate(item.Description, 40),
			item.Quantity.StringFixed(2),
			formatMoney(item.Rate),
			formatMoney(item.Amount),
		)
	}
	fmt.Println("-------------------------------------------------------------------------------")

	fmt.Printf("%62s %14s\n", "Subtotal", formatMoney(invoice.Subtotal))
	fmt.Printf("%62s %14s\n", "Tax ("+domain.TaxPercent(invoice.TaxRate)+"%)", formatMoney(invoice.TaxAmount))
	fmt.Printf("%62s %14s\n", "Total", formatMoney(invoice.Total))

	if invoice.Notes != "" {
		fmt.Printf("\nNotes: %s\n", invoice.Notes)
	}
	if invoice.PaymentTerms != "" {
		fmt.Printf("Payment terms: %s\n", invoice.PaymentTerms)
	}
}

// unbilledEntryIDs returns the stopped, billable, uninvoiced entries on the
// client's projects, oldest first.
func unbilledEntryIDs(ctx context.Context, clientID string) ([]string, error) {
	owner := appInstance.Owner()

	projects, err := appInstance.Catalog.ListProjects(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	billed := make(map[string]bool)
	for _, p := range projects {
		if p.ClientID != nil && *p.ClientID == clientID {
			billed[p.ID] = true
		}
	}

	yes, no := true, false
	unbilled, err := listAll(func(offset, limit int) ([]*domain.TimeEntry, error) {
		return appInstance.Entries.List(ctx, owner, domain.EntryFilter{
			IsBillable: &yes, IsInvoiced: &no, Offset: offset, Limit: limit,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	var entries []*domain.TimeEntry
	for _, e := range unbilled {
		if billed[e.ProjectID] && !e.IsRunning() {
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTime.Before(entries[j].StartTime)
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}

func clientNames(ctx context.Context) (map[string]string, error) {
	clients, err := appInstance.Catalog.ListClients(ctx, appInstance.Owner())
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	names := make(map[string]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	return names, nil
}

func init() {
	invoicesCmd.AddCommand(invoicesGenerateCmd)
	invoicesCmd.AddCommand(invoicesListCmd)
	invoicesCmd.AddCommand(invoicesShowCmd)
	invoicesCmd.AddCommand(invoicesUpdateCmd)
	invoicesCmd.AddCommand(invoicesStatusCmd)
	invoicesCmd.AddCommand(invoicesDeleteCmd)
	invoicesCmd.AddCommand(invoicesPDFCmd)
	invoicesCmd.AddCommand(invoicesMarkOverdueCmd)

	// Generate flags
	invoicesGenerateCmd.Flags().Bool("all-unbilled", false, "Bill every unbilled entry on the client's projects")
	invoicesGenerateCmd.Flags().String("issue", "", "Issue date (default today)")
	invoicesGenerateCmd.Flags().String("due", "", "Due date (default issue date plus default_due_days)")
	invoicesGenerateCmd.Flags().String("tax", "", "Tax rate as a fraction (0.08) or percent (8%)")
	invoicesGenerateCmd.Flags().String("notes", "", "Notes printed on the invoice")
	invoicesGenerateCmd.Flags().String("terms", "", "Payment terms (default from config)")

	// List flags
	invoicesListCmd.Flags().String("client", "", "Filter by client id or name")
	invoicesListCmd.Flags().String("status", "", "Filter by status (draft, sent, paid, overdue)")
	invoicesListCmd.Flags().Int("offset", 0, "Skip this many invoices")
	invoicesListCmd.Flags().Int("limit", domain.DefaultListLimit, "Maximum invoices to show")

	// Update flags
	invoicesUpdateCmd.Flags().String("issue", "", "New issue date")
	invoicesUpdateCmd.Flags().String("due", "", "New due date")
	invoicesUpdateCmd.Flags().String("tax", "", "New tax rate")
	invoicesUpdateCmd.Flags().String("notes", "", "New notes")
	invoicesUpdateCmd.Flags().String("terms", "", "New payment terms")

	// PDF flags
	invoicesPDFCmd.Flags().StringP("output", "o", "", "Output file (default <output_dir>/<number>.pdf)")
}
