package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects",
	Long:  `Add and list projects. A project's hourly rate prices its entries when they are invoiced.`,
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		projects, err := appInstance.Catalog.ListProjects(ctx, appInstance.Owner())
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}

		if len(projects) == 0 {
			fmt.Println("No projects found")
			return nil
		}

		clients, err := clientNames(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%-9s %-25s %-25s %12s\n", "ID", "Name", "Client", "Rate")
		fmt.Println("------------------------------------------------------------------------------")

		for _, project := range projects {
			client := "-"
			if project.ClientID != nil {
				client = clients[*project.ClientID]
			}

			fmt.Printf("%-9s %-25s %-25s %12s\n",
				shortID(project.ID),
				truncate(project.Name, 25),
				truncate(client, 25),
				formatMoney(project.HourlyRate)+"/h",
			)
		}

		return nil
	},
}

var projectsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()

		rateStr, _ := cmd.Flags().GetString("rate")
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			return fmt.Errorf("invalid rate %q", rateStr)
		}

		var clientID *string
		if cmd.Flags().Changed("client") {
			ref, _ := cmd.Flags().GetString("client")
			client, err := appInstance.Catalog.ResolveClient(ctx, owner, ref)
			if err != nil {
				return fmt.Errorf("failed to resolve client: %w", err)
			}
			clientID = &client.ID
		}

		project, err := appInstance.Catalog.AddProject(ctx, owner, args[0], clientID, rate)
		if err != nil {
			return fmt.Errorf("failed to add project: %w", err)
		}

		fmt.Printf("✓ Project added: %s (ID: %s)\n", project.Name, shortID(project.ID))
		fmt.Printf("  Rate: %s/h\n", formatMoney(project.HourlyRate))
		return nil
	},
}

func init() {
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsAddCmd)

	projectsAddCmd.Flags().String("rate", "", "Hourly rate (required)")
	projectsAddCmd.MarkFlagRequired("rate")
	projectsAddCmd.Flags().String("client", "", "Client id or name the project bills to")
}
