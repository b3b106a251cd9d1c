package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/store"
)

func TestPermissionsFromFlags(t *testing.T) {
	doc, err := permissionsFromFlags([]string{"orders.view", " payments.view", "orders.add"})
	require.NoError(t, err)

	assert.True(t, doc.Has(access.ModuleOrders, access.OpView))
	assert.True(t, doc.Has(access.ModuleOrders, access.OpAdd))
	assert.True(t, doc.Has(access.ModulePayments, access.OpView))
	assert.False(t, doc.Has(access.ModuleOrders, access.OpDelete))
	assert.False(t, doc.HasAny(access.ModuleUsers))
}

func TestPermissionsFromFlags_Rejects(t *testing.T) {
	for _, flag := range []string{"orders", "nosuch.view", ".view", "orders."} {
		_, err := permissionsFromFlags([]string{flag})
		assert.Error(t, err, flag)
	}
}

func TestRoleExportApplyRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := store.NewMemory()
	require.NoError(t, err)
	defer src.Close()

	doc, err := permissionsFromFlags([]string{"orders.view", "invoice_delivery.view"})
	require.NoError(t, err)
	require.NoError(t, src.CreateRole(ctx, &model.Role{Name: "Viewer", Description: "read only", Permissions: doc}))

	roles, err := src.ListRoles(ctx, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, exportRoles(&buf, roles))
	assert.Contains(t, buf.String(), "name: Viewer")

	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	file, err := readRoleFile(path)
	require.NoError(t, err)
	require.Len(t, file.Roles, 1)

	dst, err := store.NewMemory()
	require.NoError(t, err)
	defer dst.Close()

	var out bytes.Buffer
	require.NoError(t, applyRoles(ctx, dst, file, false, &out))
	assert.Equal(t, "create  Viewer\n", out.String())

	got, err := dst.GetRoleByName(ctx, "Viewer")
	require.NoError(t, err)
	assert.True(t, got.Permissions.Equal(doc))
	assert.Equal(t, "read only", got.Description)

	// A second apply finds nothing to change.
	out.Reset()
	require.NoError(t, applyRoles(ctx, dst, file, false, &out))
	assert.Equal(t, "keep    Viewer\n", out.String())
}

func TestApplyRoles_UpdatesAndDryRun(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewMemory()
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.CreateRole(ctx, &model.Role{Name: "Sales", Permissions: access.Normalize(nil)}))

	file := &roleFile{Roles: []roleEntry{{
		Name: "Sales",
		Permissions: map[string]any{
			"products": map[string]any{"view": true},
		},
	}}}

	var out bytes.Buffer
	require.NoError(t, applyRoles(ctx, st, file, true, &out))
	assert.Equal(t, "update  Sales\n", out.String())
	role, err := st.GetRoleByName(ctx, "Sales")
	require.NoError(t, err)
	assert.False(t, role.Permissions.Has(access.ModuleProducts, access.OpView), "dry run must not write")

	out.Reset()
	require.NoError(t, applyRoles(ctx, st, file, false, &out))
	role, err = st.GetRoleByName(ctx, "Sales")
	require.NoError(t, err)
	assert.True(t, role.Permissions.Has(access.ModuleProducts, access.OpView))
	assert.Equal(t, model.StatusActive, role.Status)
}

func TestReadRoleFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	noName := filepath.Join(dir, "noname.yaml")
	require.NoError(t, os.WriteFile(noName, []byte("roles:\n  - description: x\n"), 0644))
	_, err := readRoleFile(noName)
	assert.ErrorContains(t, err, "has no name")

	badStatus := filepath.Join(dir, "status.yaml")
	require.NoError(t, os.WriteFile(badStatus, []byte("roles:\n  - name: A\n    status: paused\n"), 0644))
	_, err = readRoleFile(badStatus)
	assert.ErrorContains(t, err, "invalid status")
}
