package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailclean/config"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/models"
)

type Repositories struct {
	SenderStatsRepository interfaces.SenderStatsRepository
	PlanRepository        interfaces.PlanRepository
	ExecutionRepository   interfaces.ExecutionRepository
	UndoRepository        interfaces.UndoRepository
	AuditRepository       interfaces.AuditRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		SenderStatsRepository: NewSenderStatsRepository(db),
		PlanRepository:        NewPlanRepository(db),
		ExecutionRepository:   NewExecutionRepository(db),
		UndoRepository:        NewUndoRepository(db),
		AuditRepository:       NewAuditRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.ScanRun{},
		&models.SenderStats{},
		&models.Plan{},
		&models.ExecutionRecord{},
		&models.UndoRecord{},
		&models.AuditEntry{},
	)

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)

	return err
}
