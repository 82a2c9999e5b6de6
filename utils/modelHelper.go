package utils

import (
	"context"

	"github.com/controlink-dev/winmax4-sync/config"
)

/* DB fetching */

// fetch model from db
// (ctx's license_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, licenseId string, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("license_id = ?", licenseId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// check if id exists, using license_id in WHERE, returns RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, licenseId string, id interface{}) error {

	db := config.GetDB()
	var v T
	var count int64
	if err := db.WithContext(ctx).Model(&v).
		Where("license_id = ?", licenseId).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}
