package model

import (
	"sort"

	"github.com/custportal/portal/internal/access"
)

// Resource describes a tenant-aware table exposed through the generic CRUD
// handler.
type Resource struct {
	// Name is the URL segment, e.g. "market-reports".
	Name  string
	Label string
	Table string
	// Module gates the routes with its view, add, edit and delete
	// permissions. Without one, any signed-in user may read and only
	// admins may write.
	Module access.Module

	// TenantColumn holds the customer code. Empty means the table is shared
	// by all tenants.
	TenantColumn string
	// OwnerColumn holds the creating user's id, stamped on create.
	OwnerColumn string
	// OwnerOnlyWrites limits edits and deletes by non-admins to the owner.
	OwnerOnlyWrites bool

	// Columns are the writable columns; Required must be present on create.
	Columns  []string
	Required []string
	// Types holds the SQL type of non-text columns.
	Types map[string]string

	// Non-admin callers only see rows where VisibleColumn = VisibleValue.
	VisibleColumn string
	VisibleValue  string

	DefaultOrder string
	// Feed adds GET /{name}/latest with the newest visible rows.
	Feed bool
}

// Guarded reports whether routes check module permissions.
func (r *Resource) Guarded() bool {
	return r.Module != ""
}

// TenantScoped reports whether rows carry a customer code.
func (r *Resource) TenantScoped() bool {
	return r.TenantColumn != ""
}

// Owned reports whether rows track their creating user.
func (r *Resource) Owned() bool {
	return r.OwnerColumn != ""
}

// Writable reports whether col may be set by clients.
func (r *Resource) Writable(col string) bool {
	for _, c := range r.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// ColumnType returns the SQL type of col, "text" unless declared otherwise.
func (r *Resource) ColumnType(col string) string {
	switch {
	case col == "id" || (r.Owned() && col == r.OwnerColumn):
		return "integer"
	case col == "created_date" || col == "modified_date":
		return "datetime"
	}
	if t, ok := r.Types[col]; ok {
		return t
	}
	return "text"
}

// Readable reports whether col may appear in filters and ordering.
func (r *Resource) Readable(col string) bool {
	switch col {
	case "id", "created_date", "modified_date":
		return true
	}
	return r.Writable(col) || col == r.OwnerColumn
}

var catalog = []Resource{
	{
		Name:   "products",
		Label:  "Products",
		Table:  "products",
		Module: access.ModuleProducts,
		Columns: []string{
			"product_number", "product_name", "product_short_description",
			"product_long_description", "product_group", "uom", "common_name",
			"botanical_name", "plant_part", "source_country", "material",
			"procurement_method", "status", "priority",
		},
		Required:      []string{"product_number", "product_name"},
		Types:         map[string]string{"priority": "integer"},
		VisibleColumn: "status",
		VisibleValue:  StatusActive,
		DefaultOrder:  "priority ASC, id DESC",
	},
	{
		Name:        "news",
		Label:       "News",
		Table:       "news",
		OwnerColumn: "created_by",
		Columns: []string{
			"title", "content", "excerpt", "image", "category", "display_order",
			"status", "published_date",
		},
		Required:      []string{"title", "content"},
		Types:         map[string]string{"display_order": "integer", "published_date": "datetime"},
		VisibleColumn: "status",
		VisibleValue:  StatusActive,
		DefaultOrder:  "published_date DESC, display_order ASC",
		Feed:          true,
	},
	{
		Name:         "orders",
		Label:        "Orders",
		Table:        "orders",
		Module:       access.ModuleOrders,
		TenantColumn: "customer_code",
		OwnerColumn:  "created_by",
		Columns: []string{
			"invoice_number", "customer_name", "customer_email", "customer_phone",
			"customer_code", "product_name", "product_id", "quantity", "unit_price",
			"amount", "invoice_date", "delivery_date", "status", "payment_status",
			"shipping_address", "notes",
		},
		Required: []string{"invoice_number", "customer_name"},
		Types: map[string]string{
			"product_id": "integer", "quantity": "real", "unit_price": "real", "amount": "real",
			"invoice_date": "date", "delivery_date": "date",
		},
		DefaultOrder: "id DESC",
	},
	{
		Name:            "meetings",
		Label:           "Meeting Minutes",
		Table:           "meeting_minutes",
		Module:          access.ModuleMeetings,
		TenantColumn:    "customer_code",
		OwnerColumn:     "created_by",
		OwnerOnlyWrites: true,
		Columns: []string{
			"mom_number", "title", "meeting_date", "attendees", "agenda", "minutes",
			"action_items", "next_meeting_date", "customer_code", "status",
		},
		Required:     []string{"title", "meeting_date", "minutes"},
		Types:        map[string]string{"meeting_date": "date", "next_meeting_date": "date"},
		DefaultOrder: "meeting_date DESC",
	},
	{
		Name:         "market-reports",
		Label:        "Market Reports",
		Table:        "market_reports",
		Module:       access.ModuleMarketReports,
		TenantColumn: "customer_code",
		OwnerColumn:  "created_by",
		Columns: []string{
			"research_number", "research_name", "research_title",
			"research_short_description", "research_long_description",
			"video_link", "status", "priority", "customer_code",
		},
		Required:      []string{"research_number", "research_name"},
		Types:         map[string]string{"priority": "integer"},
		VisibleColumn: "status",
		VisibleValue:  StatusActive,
		DefaultOrder:  "priority ASC, id DESC",
	},
	{
		Name:          "sap-materials",
		Label:         "SAP Materials",
		Table:         "sap_materials",
		Columns:       []string{"sap_material_number", "status"},
		Required:      []string{"sap_material_number"},
		VisibleColumn: "status",
		VisibleValue:  StatusActive,
		DefaultOrder:  "sap_material_number ASC",
	},
	{
		Name:         "payments",
		Label:        "Statements",
		Table:        "statements",
		Module:       access.ModulePayments,
		TenantColumn: "customer_code",
		Columns: []string{
			"customer_code", "customer_name", "customer_group", "outstanding_value",
			"invoice_number", "invoice_date", "due_date", "total_paid_amount", "status",
		},
		Required: []string{"customer_code", "customer_name"},
		Types: map[string]string{
			"outstanding_value": "real", "total_paid_amount": "real",
			"invoice_date": "date", "due_date": "date",
		},
		DefaultOrder: "due_date ASC",
	},
	{
		Name:         "invoice-deliveries",
		Label:        "Invoice to Delivery",
		Table:        "invoice_deliveries",
		Module:       access.ModuleInvoiceDelivery,
		TenantColumn: "customer_code",
		Columns: []string{
			"invoice_number", "invoice_date", "invoice_value", "invoice_value_inr",
			"dispatch_date", "lr_number", "delivery_partner", "delivered_date",
			"customer_code", "status",
		},
		Required: []string{"invoice_number"},
		Types: map[string]string{
			"invoice_value": "real", "invoice_value_inr": "real", "invoice_date": "date",
			"dispatch_date": "date", "delivered_date": "date",
		},
		DefaultOrder: "invoice_date DESC",
	},
}

// Resources returns the resource catalog sorted by name.
func Resources() []Resource {
	out := append([]Resource(nil), catalog...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupResource finds a resource by URL name.
func LookupResource(name string) (Resource, bool) {
	for _, r := range catalog {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}
