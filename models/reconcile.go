package models

import (
	"context"

	"github.com/controlink-dev/winmax4-sync/config"
	"gorm.io/gorm"
)

// DeactivateMissing retires rows whose remote id no longer appears in the
// remote set. Only meaningful on a full sync; an incremental fetch sees a
// partial remote set and must never call this. Returns how many rows changed.
func DeactivateMissing[T any](ctx context.Context, licenseId string, keepRemoteIds []int) (int, error) {
	db := config.GetDB()
	var model T

	query := db.WithContext(ctx).Unscoped().Model(&model).
		Where("license_id = ?", licenseId)
	if len(keepRemoteIds) > 0 {
		query = query.Where("id_winmax4 NOT IN ?", keepRemoteIds)
	}

	if config.UseSoftDeletes() {
		query = query.Where("deleted_at IS NULL")
		result := query.Updates(map[string]interface{}{
			"is_active":  false,
			"deleted_at": gorm.Expr("NOW()"),
		})
		return int(result.RowsAffected), result.Error
	}

	result := query.Delete(&model)
	return int(result.RowsAffected), result.Error
}

// DeactivateMissingByCode is the variant for records matched by natural code,
// used where remote ids are not unique across hierarchy levels.
func DeactivateMissingByCode[T any](ctx context.Context, licenseId string, keepCodes []string) (int, error) {
	db := config.GetDB()
	var model T

	query := db.WithContext(ctx).Unscoped().Model(&model).
		Where("license_id = ?", licenseId)
	if len(keepCodes) > 0 {
		query = query.Where("code NOT IN ?", keepCodes)
	}

	if config.UseSoftDeletes() {
		query = query.Where("deleted_at IS NULL")
		result := query.Updates(map[string]interface{}{
			"is_active":  false,
			"deleted_at": gorm.Expr("NOW()"),
		})
		return int(result.RowsAffected), result.Error
	}

	result := query.Delete(&model)
	return int(result.RowsAffected), result.Error
}
