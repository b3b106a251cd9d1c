package postgres

import "testing"

func TestInsertStatementReturnsID(t *testing.T) {
	c := &PostgresConnector{}
	q, returnsID := c.InsertStatement("meeting_minutes", []string{"title"})
	want := `INSERT INTO "meeting_minutes" ("title") VALUES (?) RETURNING "id"`
	if q != want {
		t.Errorf("got  %q\nwant %q", q, want)
	}
	if !returnsID {
		t.Error("expected returnsID")
	}
}

func TestQuoteIdentifier(t *testing.T) {
	c := &PostgresConnector{}
	if got := c.QuoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Errorf("got %q", got)
	}
}
