package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/spf13/cobra"
)

// CategoryCommands returns the category registry commands
func CategoryCommands(categories serviceinterfaces.CategoryServiceInterface, logger *observability.Logger) *cobra.Command {
	categoryCmd := &cobra.Command{
		Use:   "category",
		Short: "Category management commands",
	}

	categoryCmd.AddCommand(addCategoryCmd(categories, logger))
	categoryCmd.AddCommand(listCategoriesCmd(categories))
	categoryCmd.AddCommand(setCategoryActiveCmd(categories, logger, "deactivate", false))
	categoryCmd.AddCommand(setCategoryActiveCmd(categories, logger, "activate", true))

	return categoryCmd
}

func addCategoryCmd(categories serviceinterfaces.CategoryServiceInterface, logger *observability.Logger) *cobra.Command {
	var description, icon string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := categories.Create(ctx, cliActor, args[0], description, icon)
			if err != nil {
				return err
			}
			logger.Info(ctx, "Category created from admin tool", map[string]interface{}{"category_id": c.ID, "name": c.Name})
			fmt.Fprintf(cmd.OutOrStdout(), "Created category %s (ID: %d)\n", c.Name, c.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "category description")
	cmd.Flags().StringVar(&icon, "icon", "", "icon name shown by clients")
	return cmd
}

func listCategoriesCmd(categories serviceinterfaces.CategoryServiceInterface) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := categories.List(context.Background(), all)
			if err != nil {
				return contextutils.WrapError(err, "failed to list categories")
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tACTIVE\tDESCRIPTION")
			for _, c := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Name, yesNo(c.Active), c.Description.String)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive categories")
	return cmd
}

func setCategoryActiveCmd(categories serviceinterfaces.CategoryServiceInterface, logger *observability.Logger, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid category id %q", args[0])
			}
			c, err := categories.SetActive(ctx, cliActor, id, active)
			if err != nil {
				return err
			}
			logger.Info(ctx, "Category status changed from admin tool", map[string]interface{}{"category_id": c.ID, "active": active})
			fmt.Fprintf(cmd.OutOrStdout(), "%s active: %s\n", c.Name, yesNo(c.Active))
			return nil
		},
	}
}
