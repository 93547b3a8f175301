package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addFailedMessagesResendClaimColumn() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_add_failed_messages_resend_claim",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`ALTER TABLE failed_messages ADD COLUMN IF NOT EXISTS resend_claimed_at TIMESTAMPTZ`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`ALTER TABLE failed_messages DROP COLUMN IF EXISTS resend_claimed_at`).Error
		},
	}
}
