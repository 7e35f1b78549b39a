// Package testutil holds fixtures shared by package tests: a migrated SQLite database,
// a scriptable gateway and seed helpers.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"billflow/config"
	"billflow/internal/database"
	"billflow/internal/domain"
	"billflow/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a fresh SQLite database under t.TempDir and migrates every model.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000",
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func SeedUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	u := &models.User{Email: uuid.NewString()[:8] + "@example.com", Name: "Test User", Role: domain.RoleUser}
	require.NoError(t, db.Create(u).Error)
	return u
}

// SeedInvoice creates an unpaid invoice owned by userID.
func SeedInvoice(t *testing.T, db *gorm.DB, userID uint, total, currency string) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		UserID:      userID,
		Number:      "INV-" + uuid.NewString()[:6],
		ClientEmail: "client@example.com",
		Total:       decimal.RequireFromString(total),
		Currency:    currency,
		Status:      domain.InvoiceStatusUnpaid,
	}
	require.NoError(t, db.Create(inv).Error)
	return inv
}

// SeedPayment creates an invoice and a payment for it with the given status.
func SeedPayment(t *testing.T, db *gorm.DB, amount, currency string, status domain.PaymentStatus) *models.Payment {
	t.Helper()
	u := SeedUser(t, db)
	inv := SeedInvoice(t, db, u.ID, amount, currency)
	p := &models.Payment{
		Reference: "ref_" + uuid.NewString()[:12],
		InvoiceID: inv.ID,
		UserID:    u.ID,
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
		Status:    status,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// SeedVerifiedIdentity marks userID as KYC verified until expiresAt.
func SeedVerifiedIdentity(t *testing.T, db *gorm.DB, userID uint, expiresAt time.Time) {
	t.Helper()
	now := time.Now()
	require.NoError(t, db.Create(&models.UserIdentityVerification{
		UserID:         userID,
		DocumentType:   "bvn",
		DocumentNumber: "*******8901",
		Status:         domain.IdentityVerified,
		VerifiedAt:     &now,
		ExpiresAt:      &expiresAt,
	}).Error)
}

func ReloadPayment(t *testing.T, db *gorm.DB, id uint) *models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, db.First(&p, id).Error)
	return &p
}

func Reconciliation(t *testing.T, db *gorm.DB, paymentID uint) *models.PaymentReconciliation {
	t.Helper()
	var rec models.PaymentReconciliation
	require.NoError(t, db.Where("payment_id = ?", paymentID).First(&rec).Error)
	return &rec
}

func Recoveries(t *testing.T, db *gorm.DB, paymentID uint) []models.PaymentRecovery {
	t.Helper()
	var out []models.PaymentRecovery
	require.NoError(t, db.Where("payment_id = ?", paymentID).Order("attempt_number").Find(&out).Error)
	return out
}
