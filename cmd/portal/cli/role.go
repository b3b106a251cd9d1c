package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/store"
)

// roleFile is the YAML layout used by role export and role apply.
type roleFile struct {
	Roles []roleEntry `yaml:"roles"`
}

type roleEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Status      string `yaml:"status,omitempty"`
	Permissions any    `yaml:"permissions"`
}

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage permission roles",
		Long:  "List, create, export and apply roles that grant per-module operations to customer accounts.",
	}

	cmd.AddCommand(newRoleListCmd())
	cmd.AddCommand(newRoleCreateCmd())
	cmd.AddCommand(newRoleExportCmd())
	cmd.AddCommand(newRoleApplyCmd())

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withStore opens the configured database for the duration of fn.
func withStore(ctx context.Context, fn func(*store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

// ---------- role list ----------

func newRoleListCmd() *cobra.Command {
	var (
		jsonOutput bool
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withStore(ctx, func(st *store.Store) error {
				roles, err := st.ListRoles(ctx, activeOnly)
				if err != nil {
					return fmt.Errorf("list roles: %w", err)
				}
				return printRoles(os.Stdout, roles, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active roles")

	return cmd
}

func printRoles(w io.Writer, roles []model.Role, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(roles)
	}

	if len(roles) == 0 {
		fmt.Fprintln(w, "No roles defined. Use 'portal role create' or 'portal role apply' to add one.")
		return nil
	}

	fmt.Fprintf(w, "%-6s %-24s %-8s %s\n", "ID", "NAME", "STATUS", "PERMISSIONS")
	fmt.Fprintf(w, "%-6s %-24s %-8s %s\n", "--", "----", "------", "-----------")
	for _, r := range roles {
		granted := "-"
		if r.Permissions != nil {
			if perms := r.Permissions.Granted(); len(perms) > 0 {
				names := make([]string, len(perms))
				for i, p := range perms {
					names[i] = p.String()
				}
				granted = strings.Join(names, ",")
			}
		}
		fmt.Fprintf(w, "%-6d %-24s %-8s %s\n", r.ID, r.Name, r.Status, granted)
	}
	return nil
}

// ---------- role create ----------

func newRoleCreateCmd() *cobra.Command {
	var (
		name        string
		description string
		perms       []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new role",
		Example: `  portal role create --name "Customer Viewer" --permission orders.view --permission payments.view
  portal role create --name Sales --permission products.view,orders.view,orders.add`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := permissionsFromFlags(perms)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			return withStore(ctx, func(st *store.Store) error {
				role := &model.Role{Name: name, Description: description, Permissions: doc}
				if err := st.CreateRole(ctx, role); err != nil {
					if errors.Is(err, store.ErrConflict) {
						return fmt.Errorf("role %q already exists", name)
					}
					return err
				}
				fmt.Printf("Created role %q (id %d)\n", role.Name, role.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Role name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Role description")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "Granted permission as module.operation (repeatable)")
	cmd.MarkFlagRequired("name")

	return cmd
}

// permissionsFromFlags turns module.operation strings into a document,
// rejecting anything the vocabulary does not know.
func permissionsFromFlags(flags []string) (*access.Document, error) {
	vocab := access.DefaultVocabulary
	obj := make(map[string]any)
	for _, f := range flags {
		p, err := access.ParsePermission(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		if !vocab.Known(p.Module) {
			return nil, fmt.Errorf("unknown module %q", p.Module)
		}
		if !slices.Contains(vocab.Applicable(p.Module), p.Operation) {
			return nil, fmt.Errorf("operation %q does not apply to module %q", p.Operation, p.Module)
		}
		ops, _ := obj[string(p.Module)].(map[string]any)
		if ops == nil {
			ops = make(map[string]any)
			obj[string(p.Module)] = ops
		}
		ops[string(p.Operation)] = true
	}
	return vocab.NormalizeValue(obj), nil
}

// ---------- role export ----------

func newRoleExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all roles as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			return withStore(ctx, func(st *store.Store) error {
				roles, err := st.ListRoles(ctx, false)
				if err != nil {
					return fmt.Errorf("list roles: %w", err)
				}

				var w io.Writer = os.Stdout
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return exportRoles(w, roles)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func exportRoles(w io.Writer, roles []model.Role) error {
	file := roleFile{Roles: make([]roleEntry, 0, len(roles))}
	for _, r := range roles {
		doc := r.Permissions
		if doc == nil {
			doc = access.DefaultVocabulary.Empty()
		}
		file.Roles = append(file.Roles, roleEntry{
			Name:        r.Name,
			Description: r.Description,
			Status:      r.Status,
			Permissions: doc.Sets(),
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(file)
}

// ---------- role apply ----------

func newRoleApplyCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Create or update roles from a YAML file",
		Long: `Apply reads a file in the format written by 'portal role export'. Roles
are matched by name: existing ones are updated, missing ones are created.
Roles absent from the file are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readRoleFile(args[0])
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			return withStore(ctx, func(st *store.Store) error {
				return applyRoles(ctx, st, file, dryRun, os.Stdout)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing")

	return cmd
}

func readRoleFile(path string) (*roleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file roleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, r := range file.Roles {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("role #%d has no name", i+1)
		}
		if r.Status != "" && !model.ValidStatus(r.Status) {
			return nil, fmt.Errorf("role %q: invalid status %q", r.Name, r.Status)
		}
	}
	return &file, nil
}

func applyRoles(ctx context.Context, st *store.Store, file *roleFile, dryRun bool, w io.Writer) error {
	for _, entry := range file.Roles {
		doc := access.NormalizeValue(entry.Permissions)

		existing, err := st.GetRoleByName(ctx, entry.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			fmt.Fprintf(w, "create  %s\n", entry.Name)
			if dryRun {
				continue
			}
			role := &model.Role{Name: entry.Name, Description: entry.Description, Status: entry.Status, Permissions: doc}
			if err := st.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("create role %q: %w", entry.Name, err)
			}
		case err != nil:
			return err
		default:
			status := entry.Status
			if status == "" {
				status = existing.Status
			}
			if existing.Permissions.Equal(doc) && existing.Description == entry.Description && existing.Status == status {
				fmt.Fprintf(w, "keep    %s\n", entry.Name)
				continue
			}
			fmt.Fprintf(w, "update  %s\n", entry.Name)
			if dryRun {
				continue
			}
			existing.Description = entry.Description
			existing.Status = status
			existing.Permissions = doc
			if err := st.UpdateRole(ctx, existing); err != nil {
				return fmt.Errorf("update role %q: %w", entry.Name, err)
			}
		}
	}
	return nil
}
