package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(users serviceinterfaces.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the feedback service.

Available commands:
  create          - Create an account with any role
  list            - List accounts
  set-role        - Change a user's role and category scope
  deactivate      - Disable an account
  activate        - Re-enable an account
  reset-password  - Reset password for a specific user`,
	}

	userCmd.AddCommand(createUserCmd(users, logger))
	userCmd.AddCommand(listUsersCmd(users))
	userCmd.AddCommand(setRoleCmd(users, logger))
	userCmd.AddCommand(setActiveCmd(users, logger, "deactivate", false))
	userCmd.AddCommand(setActiveCmd(users, logger, "activate", true))
	userCmd.AddCommand(resetPasswordCmd(users, logger))

	return userCmd
}

func createUserCmd(users serviceinterfaces.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	var role, scope, firstName, lastName, studentID, department string

	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			r, err := models.ParseRole(role)
			if err != nil {
				return contextutils.WrapError(contextutils.ErrInvalidInput, err.Error())
			}
			password, err := passwordFromFlagOrPrompt(cmd.OutOrStdout(), "Password")
			if err != nil {
				return err
			}

			user, err := users.CreateUser(ctx, serviceinterfaces.NewUser{
				Email:      args[0],
				Password:   password,
				FirstName:  firstName,
				LastName:   lastName,
				Role:       r,
				Scope:      models.NewCategoryScope(scope),
				StudentID:  studentID,
				Department: department,
			})
			if err != nil {
				return err
			}

			logger.Info(ctx, "User created from admin tool", map[string]interface{}{"user_id": user.ID, "role": string(user.Role)})
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (ID: %d, role: %s)\n", user.Email, user.ID, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(models.RoleStudent), "student, category_admin or super_admin")
	cmd.Flags().StringVar(&scope, "scope", "", "category managed by a category_admin")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&studentID, "student-id", "", "student identifier")
	cmd.Flags().StringVar(&department, "department", "", "department")
	return cmd
}

func listUsersCmd(users serviceinterfaces.UserServiceInterface) *cobra.Command {
	var role, search string
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			var r models.Role
			if role != "" {
				parsed, err := models.ParseRole(role)
				if err != nil {
					return contextutils.WrapError(contextutils.ErrInvalidInput, err.Error())
				}
				r = parsed
			}

			list, total, err := users.ListUsers(ctx, page, pageSize, search, r)
			if err != nil {
				return contextutils.WrapError(err, "failed to list users")
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tSCOPE\tACTIVE\tCREATED")
			for _, u := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					u.ID, u.Email, u.FullName(), u.Role, u.CategoryScope, yesNo(u.IsActive), u.CreatedAt.Format("2006-01-02"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d users\n", len(list), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "only list users with this role")
	cmd.Flags().StringVar(&search, "search", "", "match email or name")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "users per page")
	return cmd
}

func setRoleCmd(users serviceinterfaces.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "set-role <email|id> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			user, err := lookupUser(ctx, users, args[0])
			if err != nil {
				return err
			}
			role, err := models.ParseRole(args[1])
			if err != nil {
				return contextutils.WrapError(contextutils.ErrInvalidInput, err.Error())
			}

			updated, err := users.SetRole(ctx, cliActor, user.ID, role, models.NewCategoryScope(scope))
			if err != nil {
				return err
			}
			logger.Security(ctx, "Role changed from admin tool", map[string]interface{}{"user_id": updated.ID, "role": string(updated.Role)})
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s", updated.Email, updated.Role)
			if updated.CategoryScope != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (scope: %s)", updated.CategoryScope)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "category managed by a category_admin")
	return cmd
}

func setActiveCmd(users serviceinterfaces.UserServiceInterface, logger *observability.Logger, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email|id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			user, err := lookupUser(ctx, users, args[0])
			if err != nil {
				return err
			}
			if _, err := users.SetActive(ctx, cliActor, user.ID, active); err != nil {
				return err
			}
			logger.Security(ctx, "Account status changed from admin tool", map[string]interface{}{"user_id": user.ID, "active": active})
			fmt.Fprintf(cmd.OutOrStdout(), "%s active: %s\n", user.Email, yesNo(active))
			return nil
		},
	}
}

func resetPasswordCmd(users serviceinterfaces.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <email|id>",
		Short: "Reset password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			user, err := lookupUser(ctx, users, args[0])
			if err != nil {
				return err
			}
			password, err := passwordFromFlagOrPrompt(cmd.OutOrStdout(), "New password")
			if err != nil {
				return err
			}
			if err := users.SetPassword(ctx, user.ID, password); err != nil {
				logger.Error(ctx, "Failed to update password", err, map[string]interface{}{"user_id": user.ID})
				return err
			}

			logger.Security(ctx, "Password reset from admin tool", map[string]interface{}{"user_id": user.ID})
			fmt.Fprintf(cmd.OutOrStdout(), "Password reset for %s (ID: %d)\n", user.Email, user.ID)
			return nil
		},
	}
}

// lookupUser accepts either a numeric id or an email address
func lookupUser(ctx context.Context, users serviceinterfaces.UserServiceInterface, ref string) (*models.User, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return users.GetUserByID(ctx, id)
	}
	return users.GetUserByEmail(ctx, ref)
}
