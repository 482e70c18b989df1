package db

import (
	"promptswap/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Agent{},
		&models.AgentToken{},
		&models.ReviewRawLog{},
		&models.ReviewResult{},
		&models.LimitOrder{},
		&models.NewsItem{},
	)
}
