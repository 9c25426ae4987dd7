package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage clients",
	Long:  `Add and list the clients invoices are addressed to.`,
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		clients, err := appInstance.Catalog.ListClients(ctx, appInstance.Owner())
		if err != nil {
			return fmt.Errorf("failed to list clients: %w", err)
		}

		if len(clients) == 0 {
			fmt.Println("No clients found")
			return nil
		}

		fmt.Printf("%-9s %-25s %-25s %-30s\n", "ID", "Name", "Company", "Email")
		fmt.Println("------------------------------------------------------------------------------------------")

		for _, client := range clients {
			fmt.Printf("%-9s %-25s %-25s %-30s\n",
				shortID(client.ID),
				truncate(client.Name, 25),
				truncate(client.Company, 25),
				truncate(client.Email, 30),
			)
		}

		return nil
	},
}

var clientsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		email, _ := cmd.Flags().GetString("email")
		company, _ := cmd.Flags().GetString("company")

		client, err := appInstance.Catalog.AddClient(ctx, appInstance.Owner(), args[0], email, company)
		if err != nil {
			return fmt.Errorf("failed to add client: %w", err)
		}

		fmt.Printf("✓ Client added: %s (ID: %s)\n", client.Name, shortID(client.ID))
		return nil
	},
}

func init() {
	clientsCmd.AddCommand(clientsListCmd)
	clientsCmd.AddCommand(clientsAddCmd)

	clientsAddCmd.Flags().String("email", "", "Client email")
	clientsAddCmd.Flags().String("company", "", "Company name printed on invoices")
}
