package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/internal/service"
)

var (
	userEmail    string
	userName     string
	userPassword string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user with any role, including ADMIN",
	Long: `Create a user account directly in the database. Unlike self-service
registration this may create ADMIN accounts, which are needed for the
outbox replay endpoint.

The password is read from --password or the MOCHIMO_PASSWORD environment variable.`,
	RunE: runUserCreate,
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Display name (required)")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(model.RoleAdmin), "FREELANCER, CLIENT or ADMIN")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("name")

	userCmd.AddCommand(userCreateCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	password := userPassword
	if password == "" {
		password = envOr("MOCHIMO_PASSWORD", "")
	}

	ctx := cmd.Context()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := repository.NewPgStore(pool, log)
	auth := service.NewAuthService(store.Users(), nil, cfg.JWT.Secret, cfg.JWT.TTL, log)
	return createUser(ctx, cmd.OutOrStdout(), auth, userEmail, userName, password, model.Role(userRole))
}

func createUser(ctx context.Context, w io.Writer, auth *service.AuthService, email, name, password string, role model.Role) error {
	u, err := auth.CreateUser(ctx, email, name, password, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "created user %d <%s> with role %s\n", u.ID, u.Email, u.Role)
	return nil
}
