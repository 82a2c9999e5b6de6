package models

import (
	"context"

	"github.com/controlink-dev/winmax4-sync/config"
	"gorm.io/gorm"
)

// SyncBatch mirrors an in-flight batch so operators can see progress from the
// outside. The row is deleted once the batch finalizes.
type SyncBatch struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	LicenseId   string `gorm:"index;size:100;not null" json:"license_id"`
	Name        string `gorm:"size:100" json:"name"`
	TotalJobs   int    `json:"total_jobs"`
	PendingJobs int    `json:"pending_jobs"`
	FailedJobs  int    `json:"failed_jobs"`
	CreatedAt   int64  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   int64  `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateSyncBatch(ctx context.Context, batch *SyncBatch) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(batch).Error
}

func UpdateSyncBatchCounters(ctx context.Context, id uint, pendingDelta int, failedDelta int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&SyncBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"pending_jobs": gorm.Expr("pending_jobs + ?", pendingDelta),
			"failed_jobs":  gorm.Expr("failed_jobs + ?", failedDelta),
		}).Error
}

func DeleteSyncBatch(ctx context.Context, id uint) error {
	db := config.GetDB()
	return db.WithContext(ctx).Delete(&SyncBatch{}, id).Error
}
