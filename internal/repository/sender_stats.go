package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailclean/interfaces"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
)

const senderInsertBatchSize = 500

type senderStatsRepository struct {
	db *gorm.DB
}

func NewSenderStatsRepository(db *gorm.DB) interfaces.SenderStatsRepository {
	return &senderStatsRepository{db: db}
}

func (r *senderStatsRepository) ReplaceSnapshot(ctx context.Context, run *models.ScanRun, senders []models.SenderStats) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "senderStatsRepository.ReplaceSnapshot")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("senders", len(senders))

	if run == nil {
		return errors.Wrap(mailerrors.ErrInvalidInput, "scan run is nil")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion int64
		if err := tx.Model(&models.ScanRun{}).Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error; err != nil {
			return err
		}
		run.Version = maxVersion + 1
		run.SendersCount = len(senders)
		if err := tx.Create(run).Error; err != nil {
			return err
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.SenderStats{}).Error; err != nil {
			return err
		}
		if len(senders) == 0 {
			return nil
		}
		for i := range senders {
			senders[i].ScanVersion = run.Version
			if senders[i].ID == "" {
				senders[i].ID = models.SenderID(senders[i].Email)
			}
		}
		return tx.CreateInBatches(senders, senderInsertBatchSize).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return mailerrors.Storage(err, "replace sender snapshot")
	}
	span.LogKV("version", run.Version)
	return nil
}

func (r *senderStatsRepository) GetLatestRun(ctx context.Context) (*models.ScanRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "senderStatsRepository.GetLatestRun")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var run models.ScanRun
	err := r.db.WithContext(ctx).Order("version DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, mailerrors.Storage(err, "get latest scan run")
	}
	return &run, nil
}

func (r *senderStatsRepository) ListByVersion(ctx context.Context, version int64) ([]models.SenderStats, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "senderStatsRepository.ListByVersion")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("version", version)

	var senders []models.SenderStats
	err := r.db.WithContext(ctx).Where("scan_version = ?", version).Order("email ASC").Find(&senders).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, mailerrors.Storage(err, "list sender stats")
	}
	return senders, nil
}
