package models

import (
	"context"
	"errors"
	"time"

	"github.com/controlink-dev/winmax4-sync/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncStatus is the per-entity watermark: the remote change timestamp up to
// which a license has been synced. One row per (license, entity) pair.
type SyncStatus struct {
	ID           int        `gorm:"primary_key" json:"id"`
	LicenseId    string     `gorm:"uniqueIndex:idx_sync_status,priority:1;size:100;not null" json:"license_id"`
	ModelName    string     `gorm:"uniqueIndex:idx_sync_status,priority:2;size:50;not null" json:"model_name"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    int64      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    int64      `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetLastSyncedAt returns nil when the entity has never been synced for this
// license, which callers treat as "fetch everything".
func GetLastSyncedAt(ctx context.Context, licenseId string, modelName string) (*time.Time, error) {
	db := config.GetDB()
	var status SyncStatus
	err := db.WithContext(ctx).
		Where("license_id = ? AND model_name = ?", licenseId, modelName).
		Take(&status).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return status.LastSyncedAt, nil
}

// UpdateLastSyncedAt advances the watermark, never rewinds it: a slow run
// finishing after a newer one must not move the timestamp backwards.
func UpdateLastSyncedAt(ctx context.Context, licenseId string, modelName string, syncedAt time.Time) error {
	db := config.GetDB()
	status := SyncStatus{
		LicenseId:    licenseId,
		ModelName:    modelName,
		LastSyncedAt: &syncedAt,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "license_id"}, {Name: "model_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_synced_at": gorm.Expr("GREATEST(COALESCE(last_synced_at, ?), ?)", syncedAt, syncedAt),
		}),
	}).Create(&status).Error
}
