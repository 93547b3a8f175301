package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/sms-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createFailedMessagesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_failed_messages",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.FailedMessageModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_failed_messages_created ON failed_messages (created_at DESC, id DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_failed_messages_unresolved ON failed_messages (id) WHERE resolved = false`,
				`CREATE INDEX IF NOT EXISTS idx_failed_messages_batch_id ON failed_messages (batch_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.FailedMessageModel{})
		},
	}
}
