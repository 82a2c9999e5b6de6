package models

import (
	"context"
	"errors"
	"time"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredScheduled = "scheduled"
	SyncTriggeredRetry     = "retry"
)

// SyncRun is one execution of a sync for one license and entity type. It is
// the audit record operators read when a sync misbehaves.
type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	LicenseId     string     `gorm:"index;size:100;not null" json:"license_id"`
	EntityType    string     `gorm:"index;size:50;not null" json:"entity_type"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	FullSync      bool       `json:"full_sync"`
	RecordsSynced int        `json:"records_synced"`
	Deactivated   int        `json:"deactivated"`
	ErrorCount    int        `json:"error_count"`
	ParentRunId   *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncRunError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	SyncRunId   uint      `gorm:"index;not null" json:"sync_run_id"`
	LicenseId   string    `gorm:"index;size:100;not null" json:"license_id"`
	EntityType  string    `gorm:"size:50" json:"entity_type"`
	Code        string    `gorm:"size:128" json:"code"`
	ErrorCode   string    `gorm:"size:64" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Retryable   bool      `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateSyncRun(ctx context.Context, run *SyncRun) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(run).Error
}

func GetSyncRun(ctx context.Context, licenseId string, id uint) (*SyncRun, error) {
	db := config.GetDB()
	var run SyncRun
	err := db.WithContext(ctx).
		Where("id = ? AND license_id = ?", id, licenseId).
		Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

func ListSyncRuns(ctx context.Context, licenseId string, limit int) ([]SyncRun, error) {
	db := config.GetDB()
	var runs []SyncRun
	err := db.WithContext(ctx).
		Where("license_id = ?", licenseId).
		Order("id desc").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func ListSyncRunErrors(ctx context.Context, runId uint) ([]SyncRunError, error) {
	db := config.GetDB()
	var errs []SyncRunError
	err := db.WithContext(ctx).
		Where("sync_run_id = ?", runId).
		Order("id desc").
		Find(&errs).Error
	return errs, err
}

func UpdateSyncRun(ctx context.Context, run *SyncRun, updates map[string]interface{}) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(run).Updates(updates).Error
}

func CreateSyncRunError(ctx context.Context, db *gorm.DB, runId uint, licenseId string, entityType string, code string, errorCode string, message string, payload []byte, retryable bool) error {
	errRec := SyncRunError{
		SyncRunId:   runId,
		LicenseId:   licenseId,
		EntityType:  entityType,
		Code:        code,
		ErrorCode:   errorCode,
		Message:     message,
		PayloadJSON: payload,
		Retryable:   retryable,
	}
	return db.WithContext(ctx).Create(&errRec).Error
}
