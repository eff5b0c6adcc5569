package models

import (
	"log"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"gorm.io/gorm"
)

// AllModels lists every table owned by this service.
func AllModels() []interface{} {
	return []interface{}{
		&SettlementTransaction{},
		&TicketTransaction{},
		&TripClose{},
		&VerificationEvent{},
		&IdempotencyKey{},
		&IntegrityReport{},
	}
}

func MigrateTable() {
	if err := Migrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
