// Package testdb builds in-memory SQLite databases carrying the storefront
// schema for repository and service tests.
package testdb

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		tax_id TEXT,
		phone TEXT,
		role TEXT NOT NULL DEFAULT 'customer',
		provider_customer_id TEXT UNIQUE,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price numeric NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		is_active boolean NOT NULL DEFAULT 1,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		price numeric NOT NULL,
		is_active boolean NOT NULL DEFAULT 1,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		value numeric NOT NULL,
		cycle TEXT NOT NULL,
		is_active boolean NOT NULL DEFAULT 1,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		total numeric NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		payment_method TEXT NOT NULL,
		provider_payment_id TEXT,
		provider_payment_status TEXT,
		buyer_name TEXT NOT NULL,
		buyer_email TEXT NOT NULL,
		buyer_tax_id TEXT NOT NULL,
		buyer_phone TEXT,
		shipping_address TEXT,
		stock_released boolean NOT NULL DEFAULT 0,
		paid_at datetime,
		canceled_at datetime,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT,
		course_id TEXT,
		item_type TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price numeric NOT NULL,
		created_at datetime
	)`,
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider_subscription_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		billing_type TEXT NOT NULL,
		value numeric NOT NULL,
		cycle TEXT NOT NULL,
		next_due_date datetime,
		plan_id TEXT,
		plan_name TEXT,
		plan_description TEXT,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		item_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		created_at datetime,
		updated_at datetime,
		UNIQUE (user_id, item_type, item_id)
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at datetime,
		published_at datetime,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at datetime,
		created_at datetime
	)`,
}

// Open returns a fresh in-memory database with every table created. The pool
// is pinned to one connection so concurrent transactions serialise the way
// row locks would on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:storefront_%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// Client wraps Open in a db.Client for services that need WithTx.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromConn(conn), conn
}

// MustCreateUser inserts a customer.
func MustCreateUser(t testing.TB, conn *gorm.DB) *models.User {
	t.Helper()
	taxID := "52998224725"
	user := &models.User{
		ID:    uuid.New(),
		Email: fmt.Sprintf("buyer_%s@example.com", uuid.NewString()),
		Name:  "Maria Souza",
		TaxID: &taxID,
		Role:  enums.UserRoleCustomer,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreateProduct inserts an active product.
func MustCreateProduct(t testing.TB, conn *gorm.DB, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:       uuid.New(),
		Name:     "Camiseta " + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// MustCreateCourse inserts an active course.
func MustCreateCourse(t testing.TB, conn *gorm.DB, price string) *models.Course {
	t.Helper()
	course := &models.Course{
		ID:       uuid.New(),
		Title:    "Curso " + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		IsActive: true,
	}
	if err := conn.Create(course).Error; err != nil {
		t.Fatalf("create course: %v", err)
	}
	return course
}

// MustCreatePlan inserts an active plan.
func MustCreatePlan(t testing.TB, conn *gorm.DB, value string, cycle enums.SubscriptionCycle) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ID:       uuid.New(),
		Name:     "Plano " + uuid.NewString()[:8],
		Value:    decimal.RequireFromString(value),
		Cycle:    cycle,
		IsActive: true,
	}
	if err := conn.Create(plan).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return plan
}

// Stock reads the current stock of a product.
func Stock(t testing.TB, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}
