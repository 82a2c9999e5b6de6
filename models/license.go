package models

import (
	"context"
	"errors"
	"time"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// License holds the ERP credentials for one installation. Every synced row
// carries the license id so installations never see each other's data.
type License struct {
	ID            int            `gorm:"primary_key" json:"id"`
	LicenseId     string         `gorm:"uniqueIndex;size:100;not null" json:"license_id"`
	CompanyCode   string         `gorm:"size:100;not null" json:"company_code"`
	Url           string         `gorm:"size:512;not null" json:"url"`
	Username      string         `gorm:"size:100;not null" json:"username"`
	Password      string         `gorm:"size:255;not null" json:"-"`
	TerminalCode  string         `gorm:"size:50" json:"terminal_code"`
	SkipTLSVerify *bool          `gorm:"not null;default:false" json:"skip_tls_verify"`
	IsActive      *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type NewLicense struct {
	LicenseId     string `validate:"required,max=100"`
	CompanyCode   string `validate:"required,max=100"`
	Url           string `validate:"required,url"`
	Username      string `validate:"required,max=100"`
	Password      string `validate:"required"`
	TerminalCode  string `validate:"max=50"`
	SkipTLSVerify bool
}

var licenseValidator = validator.New()

func CreateLicense(ctx context.Context, input *NewLicense) (*License, error) {
	if err := licenseValidator.Struct(input); err != nil {
		return nil, err
	}

	license := License{
		LicenseId:     input.LicenseId,
		CompanyCode:   input.CompanyCode,
		Url:           input.Url,
		Username:      input.Username,
		Password:      input.Password,
		TerminalCode:  input.TerminalCode,
		SkipTLSVerify: utils.NewBool(input.SkipTLSVerify),
		IsActive:      utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&license).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey("License:" + license.LicenseId)
	return &license, nil
}

func GetLicenseById(ctx context.Context, licenseId string) (*License, error) {
	var license License

	exists, err := config.GetRedisObject("License:"+licenseId, &license)
	if err == nil && exists {
		return &license, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Where("license_id = ?", licenseId).Take(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	_ = config.SetRedisObject("License:"+licenseId, license, 5*time.Minute)
	return &license, nil
}

// GetActiveLicenses is an operator-level listing, so the tenant guard is
// bypassed even when the context is already scoped to one license.
func GetActiveLicenses(ctx context.Context) ([]*License, error) {
	db := config.GetDB()
	var licenses []*License
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("license_id").
		Find(&licenses).Error
	return licenses, err
}
