package models

import (
	"context"
	"errors"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"gorm.io/gorm"
)

type Warehouse struct {
	ID          int            `gorm:"primary_key" json:"id"`
	LicenseId   string         `gorm:"uniqueIndex:idx_warehouse_code,priority:1;size:100;not null" json:"license_id"`
	Code        string         `gorm:"uniqueIndex:idx_warehouse_code,priority:2;size:50;not null" json:"code"`
	IdWinmax4   int            `gorm:"index" json:"id_winmax4"`
	Designation string         `gorm:"size:255" json:"designation"`
	IsActive    *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type NewWarehouse struct {
	Code        string
	IdWinmax4   int
	Designation string
	IsActive    bool
}

func UpsertWarehouse(ctx context.Context, licenseId string, input *NewWarehouse) (*Warehouse, bool, error) {
	db := config.GetDB()

	var warehouse Warehouse
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND code = ?", licenseId, input.Code).
		Take(&warehouse).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		warehouse = Warehouse{
			LicenseId:   licenseId,
			Code:        input.Code,
			IdWinmax4:   input.IdWinmax4,
			Designation: input.Designation,
			IsActive:    utils.NewBool(input.IsActive),
		}
		if err := db.WithContext(ctx).Create(&warehouse).Error; err != nil {
			return nil, false, err
		}
		return &warehouse, true, nil
	}

	if err := db.WithContext(ctx).Unscoped().Model(&warehouse).Updates(map[string]interface{}{
		"id_winmax4":  input.IdWinmax4,
		"designation": input.Designation,
		"is_active":   input.IsActive,
		"deleted_at":  nil,
	}).Error; err != nil {
		return nil, false, err
	}
	return &warehouse, false, nil
}

// GetWarehouseByCode is used when building a document push payload.
func GetWarehouseByCode(ctx context.Context, licenseId string, code string) (*Warehouse, error) {
	db := config.GetDB()
	var warehouse Warehouse
	err := db.WithContext(ctx).
		Where("license_id = ? AND code = ?", licenseId, code).
		Take(&warehouse).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &warehouse, nil
}
