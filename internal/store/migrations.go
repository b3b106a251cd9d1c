package store

import (
	"context"
	"fmt"
	"strings"
)

// schema is the SQLite DDL. Deployments on PostgreSQL, MySQL or SQL Server
// provision the equivalent tables themselves.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		permissions TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'active',
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email_id TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		customer_code TEXT,
		role TEXT NOT NULL DEFAULT 'customer',
		role_id INTEGER REFERENCES roles(id),
		status TEXT NOT NULL DEFAULT 'active',
		last_login_datetime DATETIME,
		created_by INTEGER,
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_users_customer_code ON users(customer_code)`,

	`CREATE TABLE IF NOT EXISTS login_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		username TEXT NOT NULL DEFAULT '',
		token_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		login_datetime DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		logout_datetime DATETIME
	)`,

	`CREATE INDEX IF NOT EXISTS idx_login_logs_token ON login_logs(token_id)`,

	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_number TEXT UNIQUE NOT NULL,
		product_name TEXT NOT NULL,
		product_short_description TEXT,
		product_long_description TEXT,
		product_group TEXT,
		uom TEXT,
		common_name TEXT,
		botanical_name TEXT,
		plant_part TEXT,
		source_country TEXT,
		material TEXT,
		procurement_method TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		priority INTEGER NOT NULL DEFAULT 0,
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS news (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		excerpt TEXT,
		image TEXT,
		category TEXT,
		display_order INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		published_date DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_by INTEGER,
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS sap_materials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sap_material_number TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_number TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_email TEXT,
		customer_phone TEXT,
		customer_code TEXT,
		product_name TEXT,
		product_id INTEGER,
		quantity REAL,
		unit_price REAL,
		amount REAL,
		invoice_date DATE,
		delivery_date DATE,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		shipping_address TEXT,
		notes TEXT,
		created_by INTEGER,
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_orders_customer_code ON orders(customer_code)`,

	`CREATE TABLE IF NOT EXISTS meeting_minutes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mom_number TEXT,
		title TEXT NOT NULL,
		meeting_date DATE NOT NULL,
		attendees TEXT,
		agenda TEXT,
		minutes TEXT NOT NULL,
		action_items TEXT,
		next_meeting_date DATE,
		customer_code TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		created_by INTEGER,
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_meeting_minutes_customer_code ON meeting_minutes(customer_code)`,

	`CREATE TABLE IF NOT EXISTS market_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		research_number TEXT UNIQUE NOT NULL,
		research_name TEXT NOT NULL,
		research_title TEXT,
		research_short_description TEXT,
		research_long_description TEXT,
		video_link TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		priority INTEGER NOT NULL DEFAULT 0,
		customer_code TEXT,
		created_by INTEGER,
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS statements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_code TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_group TEXT,
		outstanding_value REAL,
		invoice_number TEXT,
		invoice_date DATE,
		due_date DATE,
		total_paid_amount REAL,
		status TEXT NOT NULL DEFAULT 'open',
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_statements_customer_code ON statements(customer_code)`,

	`CREATE TABLE IF NOT EXISTS invoice_deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_number TEXT NOT NULL,
		invoice_date DATE,
		invoice_value REAL,
		invoice_value_inr REAL,
		dispatch_date DATE,
		lr_number TEXT,
		delivery_partner TEXT,
		delivered_date DATE,
		customer_code TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_invoice_deliveries_customer_code ON invoice_deliveries(customer_code)`,
}

// ErrMigrateUnsupported is returned by Migrate on drivers other than SQLite.
var ErrMigrateUnsupported = fmt.Errorf("schema migrations are only bundled for sqlite")

// Migrate applies the bundled schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if s.Driver() != "sqlite" {
		return ErrMigrateUnsupported
	}
	for _, m := range schema {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			// SQLite ALTER TABLE ADD COLUMN fails if the column already exists.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
