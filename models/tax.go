package models

import (
	"context"
	"errors"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Tax struct {
	ID          int            `gorm:"primary_key" json:"id"`
	LicenseId   string         `gorm:"uniqueIndex:idx_tax_code,priority:1;size:100;not null" json:"license_id"`
	Code        string         `gorm:"uniqueIndex:idx_tax_code,priority:2;size:50;not null" json:"code"`
	Designation string         `gorm:"size:255" json:"designation"`
	IsActive    *bool          `gorm:"not null;default:true" json:"is_active"`
	Rates       []TaxRate      `gorm:"foreignKey:TaxID" json:"rates"`
	CreatedAt   int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// TaxRate rows belong to a local Tax and are replaced wholesale on every sync.
type TaxRate struct {
	ID              int             `gorm:"primary_key" json:"id"`
	LicenseId       string          `gorm:"index;size:100;not null" json:"license_id"`
	TaxID           int             `gorm:"index;not null" json:"tax_id"`
	FixedAmountRate decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"fixed_amount_rate"`
	PercentageRate  decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"percentage_rate"`
	CreatedAt       int64           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       int64           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTax struct {
	Code        string
	Designation string
	IsActive    bool
	Rates       []NewTaxRate
}

type NewTaxRate struct {
	FixedAmountRate decimal.Decimal
	PercentageRate  decimal.Decimal
}

// UpsertTax writes the tax header and replaces its rate rows in one
// transaction, so a reader never sees a tax with half its rates.
func UpsertTax(ctx context.Context, licenseId string, input *NewTax) (*Tax, bool, error) {
	db := config.GetDB()

	var tax Tax
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND code = ?", licenseId, input.Code).
		Take(&tax).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	created := errors.Is(err, gorm.ErrRecordNotFound)

	txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if created {
			tax = Tax{
				LicenseId:   licenseId,
				Code:        input.Code,
				Designation: input.Designation,
				IsActive:    utils.NewBool(input.IsActive),
			}
			if err := tx.Create(&tax).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Unscoped().Model(&tax).Updates(map[string]interface{}{
				"designation": input.Designation,
				"is_active":   input.IsActive,
				"deleted_at":  nil,
			}).Error; err != nil {
				return err
			}
			if err := tx.Where("tax_id = ?", tax.ID).Delete(&TaxRate{}).Error; err != nil {
				return err
			}
		}

		for _, rate := range input.Rates {
			row := TaxRate{
				LicenseId:       licenseId,
				TaxID:           tax.ID,
				FixedAmountRate: rate.FixedAmountRate,
				PercentageRate:  rate.PercentageRate,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, false, txErr
	}
	return &tax, created, nil
}

func GetTaxByCode(ctx context.Context, licenseId string, code string) (*Tax, error) {
	db := config.GetDB()
	var tax Tax
	err := db.WithContext(ctx).Preload("Rates").
		Where("license_id = ? AND code = ?", licenseId, code).
		Take(&tax).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &tax, nil
}
