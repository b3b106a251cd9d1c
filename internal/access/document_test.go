package access

import (
	"encoding/json"
	"testing"
)

func TestNormalizeFillsEveryModule(t *testing.T) {
	doc := Normalize([]byte(`{"products":{"view":true}}`))

	mods := doc.Modules()
	if len(mods) != len(DefaultVocabulary.Modules()) {
		t.Fatalf("modules: got %d, want %d", len(mods), len(DefaultVocabulary.Modules()))
	}
	if !doc.Has(ModuleProducts, OpView) {
		t.Error("expected products.view")
	}
	for _, op := range []Operation{OpAdd, OpEdit, OpDelete} {
		if doc.Has(ModuleProducts, op) {
			t.Errorf("products.%s should default to false", op)
		}
	}
	if doc.HasAny(ModuleOrders) {
		t.Error("orders should be fully denied")
	}
}

func TestNormalizeMalformedIsFullyDenied(t *testing.T) {
	inputs := []string{
		``,
		`null`,
		`not json`,
		`{"products":`,
		`[]`,
		`42`,
		`"just a string"`,
		`{"products":true}`,
		`{"products":["view"]}`,
		`{"products":{"view":"true"}}`,
		`{"products":{"view":1}}`,
		`{"unknown_module":{"view":true}}`,
	}
	for _, in := range inputs {
		doc := Normalize([]byte(in))
		for _, m := range DefaultVocabulary.Modules() {
			for _, op := range Operations {
				if doc.Has(m, op) {
					t.Errorf("Normalize(%q): %s.%s granted, want denied", in, m, op)
				}
			}
		}
	}
}

func TestNormalizeDashboardIsViewOnly(t *testing.T) {
	doc := Normalize([]byte(`{"dashboard":{"view":true,"add":true,"edit":true,"delete":true}}`))
	if !doc.Has(ModuleDashboard, OpView) {
		t.Error("expected dashboard.view")
	}
	for _, op := range []Operation{OpAdd, OpEdit, OpDelete} {
		if doc.Has(ModuleDashboard, op) {
			t.Errorf("dashboard.%s should be forced false", op)
		}
	}
}

func TestNormalizeDoubleEncodedString(t *testing.T) {
	inner := `{"orders":{"view":true,"edit":true}}`
	outer, _ := json.Marshal(inner)

	doc := Normalize(outer)
	if !doc.Has(ModuleOrders, OpView) || !doc.Has(ModuleOrders, OpEdit) {
		t.Errorf("expected orders.view and orders.edit from double-encoded input")
	}
}

func TestNormalizeValueShapes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"json map", map[string]any{"payments": map[string]any{"add": true}}, true},
		{"yaml map", map[any]any{"payments": map[any]any{"add": true}}, true},
		{"typed sets", map[Module]OperationSet{ModulePayments: {Add: true}}, true},
		{"string", `{"payments":{"add":true}}`, true},
		{"nil", nil, false},
		{"int", 7, false},
		{"nil document", (*Document)(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NormalizeValue(tt.in)
			if got := doc.Has(ModulePayments, OpAdd); got != tt.want {
				t.Errorf("payments.add = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first := Normalize([]byte(`{"users":{"view":true,"delete":true},"bogus":{"view":true}}`))
	encoded, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second := Normalize(encoded)
	if !first.Equal(second) {
		t.Errorf("normalize(marshal(doc)) differs: %s", encoded)
	}
	if !first.Equal(NormalizeValue(first)) {
		t.Error("normalizing a document should yield an equal document")
	}
}

func TestHasUnknownModuleOrOperation(t *testing.T) {
	doc := Normalize([]byte(`{"orders":{"view":true,"add":true,"edit":true,"delete":true}}`))
	if doc.Has("invoices", OpView) {
		t.Error("unknown module must be denied")
	}
	if doc.Has(ModuleOrders, "approve") {
		t.Error("unknown operation must be denied")
	}
	if doc.HasAny("invoices") {
		t.Error("HasAny on unknown module must be false")
	}
}

func TestNilDocumentDeniesEverything(t *testing.T) {
	var doc *Document
	if doc.Has(ModuleProducts, OpView) {
		t.Error("nil document granted products.view")
	}
	if doc.HasAny(ModuleProducts) {
		t.Error("nil document granted module access")
	}
	if len(doc.Granted()) != 0 {
		t.Error("nil document should list no grants")
	}
	b, err := json.Marshal(doc)
	if err != nil || string(b) != "null" {
		t.Errorf("marshal nil document: %s, %v", b, err)
	}
}

func TestDocumentMarshalFullShape(t *testing.T) {
	doc := Normalize([]byte(`{"meetings":{"edit":true}}`))
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]map[string]bool
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(m) != len(DefaultVocabulary.Modules()) {
		t.Errorf("modules: got %d, want %d", len(m), len(DefaultVocabulary.Modules()))
	}
	for mod, ops := range m {
		if len(ops) != 4 {
			t.Errorf("%s: got %d operations, want 4", mod, len(ops))
		}
	}
	if !m["meetings"]["edit"] {
		t.Error("meetings.edit lost in marshal")
	}
}

func TestGrantedOrder(t *testing.T) {
	doc := Normalize([]byte(`{"orders":{"delete":true,"view":true},"dashboard":{"view":true}}`))
	got := doc.Granted()
	want := []string{"dashboard.view", "orders.view", "orders.delete"}
	if len(got) != len(want) {
		t.Fatalf("Granted: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("Granted[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCustomVocabulary(t *testing.T) {
	v := NewVocabulary(map[Module][]Operation{
		"reports": {OpView},
		"tickets": nil,
	})
	doc := v.Normalize([]byte(`{"reports":{"view":true,"add":true},"tickets":{"delete":true},"orders":{"view":true}}`))
	if !doc.Has("reports", OpView) || doc.Has("reports", OpAdd) {
		t.Error("reports should be view-only")
	}
	if !doc.Has("tickets", OpDelete) {
		t.Error("tickets should accept all operations")
	}
	if doc.Has(ModuleOrders, OpView) {
		t.Error("orders is not in this vocabulary")
	}
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("invoice_delivery.view")
	if err != nil {
		t.Fatalf("ParsePermission: %v", err)
	}
	if p.Module != ModuleInvoiceDelivery || p.Operation != OpView {
		t.Errorf("got %+v", p)
	}
	for _, bad := range []string{"", "orders", ".view", "orders."} {
		if _, err := ParsePermission(bad); err == nil {
			t.Errorf("ParsePermission(%q): expected error", bad)
		}
	}
}

func TestDocumentCache(t *testing.T) {
	c, err := NewDocumentCache(nil, 2)
	if err != nil {
		t.Fatalf("NewDocumentCache: %v", err)
	}
	raw := `{"orders":{"view":true}}`
	a := c.Get(raw)
	b := c.Get(raw)
	if a != b {
		t.Error("expected the same cached document for identical input")
	}

	edited := c.Get(`{"orders":{"view":false}}`)
	if edited.Has(ModuleOrders, OpView) {
		t.Error("edited permissions must not be served from the old entry")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}
