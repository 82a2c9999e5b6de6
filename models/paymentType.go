package models

import (
	"context"
	"errors"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"gorm.io/gorm"
)

type PaymentType struct {
	ID          int            `gorm:"primary_key" json:"id"`
	LicenseId   string         `gorm:"uniqueIndex:idx_payment_type_code,priority:1;size:100;not null" json:"license_id"`
	Code        string         `gorm:"uniqueIndex:idx_payment_type_code,priority:2;size:50;not null" json:"code"`
	IdWinmax4   int            `gorm:"index" json:"id_winmax4"`
	Designation string         `gorm:"size:255" json:"designation"`
	IsActive    *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type NewPaymentType struct {
	Code        string
	IdWinmax4   int
	Designation string
	IsActive    bool
}

func UpsertPaymentType(ctx context.Context, licenseId string, input *NewPaymentType) (*PaymentType, bool, error) {
	db := config.GetDB()

	var paymentType PaymentType
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND code = ?", licenseId, input.Code).
		Take(&paymentType).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		paymentType = PaymentType{
			LicenseId:   licenseId,
			Code:        input.Code,
			IdWinmax4:   input.IdWinmax4,
			Designation: input.Designation,
			IsActive:    utils.NewBool(input.IsActive),
		}
		if err := db.WithContext(ctx).Create(&paymentType).Error; err != nil {
			return nil, false, err
		}
		return &paymentType, true, nil
	}

	if err := db.WithContext(ctx).Unscoped().Model(&paymentType).Updates(map[string]interface{}{
		"id_winmax4":  input.IdWinmax4,
		"designation": input.Designation,
		"is_active":   input.IsActive,
		"deleted_at":  nil,
	}).Error; err != nil {
		return nil, false, err
	}
	return &paymentType, false, nil
}
