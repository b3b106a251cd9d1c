package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
)

func resource(t *testing.T, name string) *model.Resource {
	t.Helper()
	res, ok := model.LookupResource(name)
	require.True(t, ok, "resource %s", name)
	return &res
}

func seedOrders(t *testing.T, s *Store) (c1, c2 Record) {
	t.Helper()
	orders := resource(t, "orders")
	ctx := context.Background()

	c1, err := s.CreateRecord(ctx, orders, map[string]interface{}{
		"invoice_number": "INV-1", "customer_name": "Acme", "customer_code": "C1", "amount": 10.5,
	}, 11)
	require.NoError(t, err)
	c2, err = s.CreateRecord(ctx, orders, map[string]interface{}{
		"invoice_number": "INV-2", "customer_name": "Globex", "customer_code": "C2",
	}, 12)
	require.NoError(t, err)
	return c1, c2
}

func TestListRecordsRespectsScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orders := resource(t, "orders")
	seedOrders(t, s)

	all, total, err := s.ListRecords(ctx, orders, RecordFilter{Scope: access.AllTenants()})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.EqualValues(t, 2, total)

	c1, total, err := s.ListRecords(ctx, orders, RecordFilter{Scope: access.Tenant("C1")})
	require.NoError(t, err)
	require.Len(t, c1, 1)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "C1", c1[0]["customer_code"])
	assert.Equal(t, "INV-1", c1[0]["invoice_number"])

	none, total, err := s.ListRecords(ctx, orders, RecordFilter{Scope: access.NoTenants()})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Zero(t, total)
}

func TestRecordOutsideScopeIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orders := resource(t, "orders")
	_, c2 := seedOrders(t, s)

	_, err := s.GetRecord(ctx, orders, access.Tenant("C1"), c2.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateRecord(ctx, orders, access.Tenant("C1"), c2.ID(), map[string]interface{}{"notes": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteRecord(ctx, orders, access.Tenant("C1"), c2.ID()), ErrNotFound)

	got, err := s.GetRecord(ctx, orders, access.AllTenants(), c2.ID())
	require.NoError(t, err)
	assert.Equal(t, "INV-2", got["invoice_number"])
}

func TestUpdateAndDeleteRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orders := resource(t, "orders")
	c1, _ := seedOrders(t, s)

	updated, err := s.UpdateRecord(ctx, orders, access.Tenant("C1"), c1.ID(), map[string]interface{}{"status": "shipped"})
	require.NoError(t, err)
	assert.Equal(t, "shipped", updated["status"])

	_, err = s.UpdateRecord(ctx, orders, access.AllTenants(), c1.ID(), map[string]interface{}{"customer_name": ""})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, s.DeleteRecord(ctx, orders, access.Tenant("C1"), c1.ID()))
	_, err = s.GetRecord(ctx, orders, access.AllTenants(), c1.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orders := resource(t, "orders")
	c1, _ := seedOrders(t, s)

	owner, err := s.RecordOwner(ctx, orders, access.AllTenants(), c1.ID())
	require.NoError(t, err)
	assert.EqualValues(t, 11, owner)

	_, err = s.RecordOwner(ctx, orders, access.Tenant("C2"), c1.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	payments := resource(t, "payments")
	owner, err = s.RecordOwner(ctx, payments, access.AllTenants(), 1)
	require.NoError(t, err)
	assert.Zero(t, owner)
}

func TestCreateRecordValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orders := resource(t, "orders")

	_, err := s.CreateRecord(ctx, orders, map[string]interface{}{"invoice_number": "INV-9"}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput, "missing customer_name")

	_, err = s.CreateRecord(ctx, orders, map[string]interface{}{
		"invoice_number": "INV-9", "customer_name": "x", "created_by": 99,
	}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput, "owner column is not client-writable")

	_, err = s.CreateRecord(ctx, orders, map[string]interface{}{
		"invoice_number": "INV-9", "customer_name": "x", "notes": map[string]interface{}{"a": 1},
	}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput, "nested objects are rejected")

	rec, err := s.CreateRecord(ctx, orders, map[string]interface{}{
		"invoice_number": "INV-10", "customer_name": "Ac\x00me",
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec["customer_name"])
}

func TestListRecordsVisibilityAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	products := resource(t, "products")

	for _, p := range []map[string]interface{}{
		{"product_number": "P1", "product_name": "Turmeric", "status": "active", "priority": 2},
		{"product_number": "P2", "product_name": "Ginger", "status": "inactive", "priority": 1},
		{"product_number": "P3", "product_name": "Clove", "status": "active", "priority": 1},
	} {
		_, err := s.CreateRecord(ctx, products, p, 0)
		require.NoError(t, err)
	}

	// Products are shared; a customer without a tenant still sees them.
	visible, total, err := s.ListRecords(ctx, products, RecordFilter{Scope: access.NoTenants(), VisibleOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, visible, 2)
	assert.Equal(t, "P3", visible[0]["product_number"], "default order is priority ASC")

	all, _, err := s.ListRecords(ctx, products, RecordFilter{Scope: access.AllTenants()})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byNum, _, err := s.ListRecords(ctx, products, RecordFilter{
		Scope:  access.AllTenants(),
		Equals: map[string]string{"product_number": "P2"},
	})
	require.NoError(t, err)
	require.Len(t, byNum, 1)

	_, _, err = s.ListRecords(ctx, products, RecordFilter{Equals: map[string]string{"password_hash": "x"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = s.ListRecords(ctx, products, RecordFilter{Order: "nope DESC"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	n, err := s.CountRecords(ctx, products, RecordFilter{VisibleOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
