// Package testdb opens throwaway sqlite databases carrying the tables and
// constraints of the Postgres migrations.
package testdb

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE owners (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE restaurants (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  currency TEXT NOT NULL DEFAULT 'KES',
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE restaurant_payment_settings (
  restaurant_id TEXT PRIMARY KEY,
  mpesa_consumer_key TEXT,
  mpesa_consumer_secret TEXT,
  mpesa_shortcode TEXT,
  mpesa_passkey TEXT,
  mpesa_environment TEXT NOT NULL DEFAULT 'sandbox',
  pesapal_consumer_key TEXT,
  pesapal_consumer_secret TEXT,
  pesapal_ipn_id TEXT,
  pesapal_environment TEXT NOT NULL DEFAULT 'sandbox',
  updated_at DATETIME
)`,
	`CREATE TABLE menu_items (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  category TEXT,
  price TEXT NOT NULL,
  available INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  customer_token TEXT NOT NULL UNIQUE,
  restaurant_id TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  order_type TEXT NOT NULL DEFAULT 'now' CHECK (order_type IN ('now', 'later')),
  payment_method TEXT NOT NULL CHECK (payment_method IN ('mpesa', 'pesapal', 'cash')),
  payment_status TEXT NOT NULL DEFAULT 'pending' CHECK (payment_status IN ('pending', 'failed', 'completed')),
  order_status TEXT NOT NULL DEFAULT 'pending' CHECK (order_status IN ('pending', 'confirmed', 'preparing', 'ready', 'completed', 'cancelled')),
  total_amount TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'KES',
  table_number TEXT,
  customer_name TEXT,
  customer_phone TEXT,
  customer_email TEXT,
  scheduled_for DATETIME,
  gateway_reference TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT orders_paid_not_pending CHECK (payment_status <> 'completed' OR order_status NOT IN ('pending', 'cancelled'))
)`,
	`CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  menu_item_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  customizations TEXT,
  special_instructions TEXT,
  line_total TEXT NOT NULL,
  created_at DATETIME
)`,
	`CREATE TABLE waiter_calls (
  id TEXT PRIMARY KEY,
  restaurant_id TEXT NOT NULL,
  table_number TEXT NOT NULL CHECK (trim(table_number) <> ''),
  notes TEXT,
  status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'acknowledged', 'completed')),
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE payment_callbacks (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  reference TEXT NOT NULL,
  result_code TEXT NOT NULL,
  result_desc TEXT,
  amount TEXT,
  receipt_number TEXT,
  phone_number TEXT,
  payload TEXT,
  received_at DATETIME
)`,
	`CREATE TABLE notifications (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  customer_token TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at DATETIME
)`,
}

// Open returns an isolated in-memory database with the full schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:tableside_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}
