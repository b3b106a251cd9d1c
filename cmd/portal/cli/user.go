package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/config"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/service"
	"github.com/custportal/portal/internal/session"
	"github.com/custportal/portal/internal/store"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage portal accounts",
		Long:  "Create and list portal accounts directly against the database, for example to bootstrap the first admin.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())

	return cmd
}

// ---------- user create ----------

type userCreateOptions struct {
	username     string
	email        string
	password     string
	role         string
	customerCode string
	roleName     string
	firstName    string
	lastName     string
}

func newUserCreateCmd() *cobra.Command {
	var opts userCreateOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new account",
		Example: `  portal user create --username admin --role admin
  portal user create --username acme --customer-code CUST001 --role-name "Customer Viewer"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(commandContext(cmd), opts)
		},
	}

	cmd.Flags().StringVar(&opts.username, "username", "", "Login name (required)")
	cmd.Flags().StringVar(&opts.email, "email", "", "Email address")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&opts.role, "role", string(access.RoleCustomer), "Account type: admin or customer")
	cmd.Flags().StringVar(&opts.customerCode, "customer-code", "", "Customer code the account is scoped to")
	cmd.Flags().StringVar(&opts.roleName, "role-name", "", "Name of the permission role to assign")
	cmd.Flags().StringVar(&opts.firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&opts.lastName, "last-name", "", "Last name")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runUserCreate(ctx context.Context, opts userCreateOptions) error {
	tag := access.RoleTag(opts.role)
	if !tag.Valid() {
		return fmt.Errorf("invalid role %q (use admin or customer)", opts.role)
	}
	if opts.email != "" && !strings.Contains(opts.email, "@") {
		return fmt.Errorf("invalid email address: %q", opts.email)
	}

	password := opts.password
	if password == "" {
		var err error
		if password, err = readPassword(); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	u := &model.User{
		Username:     opts.username,
		Email:        opts.email,
		FirstName:    opts.firstName,
		LastName:     opts.lastName,
		CustomerCode: opts.customerCode,
		Role:         tag,
	}
	if opts.roleName != "" {
		role, err := st.GetRoleByName(ctx, opts.roleName)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("role %q not found", opts.roleName)
			}
			return err
		}
		u.RoleID = &role.ID
	}

	hash, err := passwordHasher(st, cfg).HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash

	if err := st.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("username %q already exists", u.Username)
		}
		return err
	}

	fmt.Printf("Created %s account %q (id %d)\n", u.Role, u.Username, u.ID)
	if u.Role == access.RoleCustomer && u.CustomerCode == "" {
		fmt.Println("  note: no customer code set, the account will see no tenant data")
	}
	return nil
}

// passwordHasher returns an AuthService used only for hashing; it never
// issues or revokes tokens.
func passwordHasher(st *store.Store, cfg *config.Config) *service.AuthService {
	return service.NewAuthService(st, session.NewMemory(session.Config{}), service.AuthOptions{
		BcryptCost: cfg.Auth.BcryptCost,
	})
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var (
		jsonOutput   bool
		customerCode string
		status       string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(commandContext(cmd), customerCode, status, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&customerCode, "customer-code", "", "Only accounts of this customer")
	cmd.Flags().StringVar(&status, "status", "", "Only accounts with this status (active, inactive)")

	return cmd
}

func runUserList(ctx context.Context, customerCode, status string, jsonOutput bool) error {
	if status != "" && !model.ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	scope := access.AllTenants()
	if customerCode != "" {
		scope = access.Tenant(customerCode)
	}
	users, _, err := st.ListUsers(ctx, store.UserFilter{Scope: scope, Status: status})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No accounts found. Use 'portal user create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-20s %-10s %-12s %-8s\n", "ID", "USERNAME", "ROLE", "CUSTOMER", "STATUS")
	fmt.Printf("%-6s %-20s %-10s %-12s %-8s\n", "--", "--------", "----", "--------", "------")
	for _, u := range users {
		code := u.CustomerCode
		if code == "" {
			code = "-"
		}
		fmt.Printf("%-6d %-20s %-10s %-12s %-8s\n", u.ID, u.Username, u.Role, code, u.Status)
	}
	return nil
}
