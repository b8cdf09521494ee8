// internal/testutil/fixtures.go
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agrilink/marketplace-backend/internal/config"
	"github.com/agrilink/marketplace-backend/internal/database"
	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/services"
	"github.com/agrilink/marketplace-backend/internal/utils"
)

const (
	DefaultPassword = "harvest2024"
	GatewaySecret   = "test_gateway_secret"
)

// NewTestDB opens a migrated in-memory SQLite database. A single connection
// keeps every query on the same in-memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Initialize(config.DatabaseConfig{
		Driver:       "sqlite",
		Database:     ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))

	t.Cleanup(func() { database.Close(db) })
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()

	user := &models.User{
		Name:  fmt.Sprintf("Test %s", role),
		Email: fmt.Sprintf("%s-%s@example.com", role, uuid.NewString()[:8]),
		Role:  role,
	}
	require.NoError(t, user.SetPassword(DefaultPassword))
	require.NoError(t, db.Create(user).Error)

	switch role {
	case models.RoleFarmer:
		require.NoError(t, db.Create(&models.FarmerProfile{UserID: user.ID, Location: "Nashik"}).Error)
	case models.RoleBuyer:
		require.NoError(t, db.Create(&models.BuyerProfile{UserID: user.ID, Address: "12 Market Road"}).Error)
	}
	return user
}

func CreateCrop(t *testing.T, db *gorm.DB, farmerID uuid.UUID, quantity int, price string) *models.Crop {
	t.Helper()

	crop := &models.Crop{
		FarmerID:     farmerID,
		Name:         "Tomato",
		Category:     "vegetables",
		Quantity:     quantity,
		Unit:         "kg",
		PricePerUnit: decimal.RequireFromString(price),
		Location:     "Nashik, Maharashtra",
		Status:       models.StatusForQuantity(quantity),
	}
	require.NoError(t, db.Create(crop).Error)
	return crop
}

func ReloadCrop(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Crop {
	t.Helper()
	var crop models.Crop
	require.NoError(t, db.First(&crop, "id = ?", id).Error)
	return &crop
}

func ReloadOrder(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", id).Error)
	return &order
}

// AfterNextRead runs fn once, right after the next SELECT on table has
// scanned its rows. fn gets a session on the same connection, so it can
// write inside the caller's transaction as a concurrent writer would have
// committed between the read and the write that follows it.
func AfterNextRead(t *testing.T, db *gorm.DB, table string, fn func(tx *gorm.DB)) {
	t.Helper()

	var fired atomic.Bool
	name := "testutil:after_read:" + uuid.NewString()
	err := db.Callback().Query().After("gorm:query").Register(name, func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement.Table != table {
			return
		}
		if !fired.CompareAndSwap(false, true) {
			return
		}
		fn(tx.Session(&gorm.Session{NewDB: true, Context: tx.Statement.Context}))
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Callback().Query().Remove(name) })
}

// FakeGateway signs payments with GatewaySecret and records refunds.
type FakeGateway struct {
	mu        sync.Mutex
	created   int
	Refunds   []string
	RefundErr error
	CreateErr error
}

func (g *FakeGateway) Name() string      { return "fake" }
func (g *FakeGateway) PublicKey() string { return "key_test" }

func (g *FakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*services.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.created++
	return &services.GatewayOrder{ID: fmt.Sprintf("order_test_%d", g.created)}, nil
}

func (g *FakeGateway) VerifySignature(providerOrderID, providerPaymentID, signature string) bool {
	return utils.VerifyPaymentSignature(GatewaySecret, providerOrderID, providerPaymentID, signature)
}

func (g *FakeGateway) Refund(ctx context.Context, providerPaymentID string, amountMinor int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefundErr != nil {
		return g.RefundErr
	}
	g.Refunds = append(g.Refunds, providerPaymentID)
	return nil
}

func (g *FakeGateway) RefundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Refunds)
}

// RecordingPublisher keeps every published event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*models.OrderEvent
}

func (p *RecordingPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}
