package models

import (
	"context"
	"errors"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"gorm.io/gorm"
)

// The family catalogue is a three-level tree. Children reference their parent
// by local id, resolved at upsert time, so remote parent codes never leak past
// this package.

type Family struct {
	ID          int            `gorm:"primary_key" json:"id"`
	LicenseId   string         `gorm:"uniqueIndex:idx_family_code,priority:1;size:100;not null" json:"license_id"`
	Code        string         `gorm:"uniqueIndex:idx_family_code,priority:2;size:50;not null" json:"code"`
	IdWinmax4   int            `gorm:"index" json:"id_winmax4"`
	Designation string         `gorm:"size:255" json:"designation"`
	IsActive    *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type SubFamily struct {
	ID          int            `gorm:"primary_key" json:"id"`
	LicenseId   string         `gorm:"uniqueIndex:idx_sub_family_code,priority:1;size:100;not null" json:"license_id"`
	FamilyID    int            `gorm:"uniqueIndex:idx_sub_family_code,priority:2;not null" json:"family_id"`
	Code        string         `gorm:"uniqueIndex:idx_sub_family_code,priority:3;size:50;not null" json:"code"`
	IdWinmax4   int            `gorm:"index" json:"id_winmax4"`
	Designation string         `gorm:"size:255" json:"designation"`
	IsActive    *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type SubSubFamily struct {
	ID          int            `gorm:"primary_key" json:"id"`
	LicenseId   string         `gorm:"uniqueIndex:idx_sub_sub_family_code,priority:1;size:100;not null" json:"license_id"`
	SubFamilyID int            `gorm:"uniqueIndex:idx_sub_sub_family_code,priority:2;not null" json:"sub_family_id"`
	Code        string         `gorm:"uniqueIndex:idx_sub_sub_family_code,priority:3;size:50;not null" json:"code"`
	IdWinmax4   int            `gorm:"index" json:"id_winmax4"`
	Designation string         `gorm:"size:255" json:"designation"`
	IsActive    *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type NewFamily struct {
	Code        string
	IdWinmax4   int
	Designation string
	IsActive    bool
}

func UpsertFamily(ctx context.Context, licenseId string, input *NewFamily) (*Family, bool, error) {
	db := config.GetDB()

	var family Family
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND code = ?", licenseId, input.Code).
		Take(&family).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		family = Family{
			LicenseId:   licenseId,
			Code:        input.Code,
			IdWinmax4:   input.IdWinmax4,
			Designation: input.Designation,
			IsActive:    utils.NewBool(input.IsActive),
		}
		if err := db.WithContext(ctx).Create(&family).Error; err != nil {
			return nil, false, err
		}
		return &family, true, nil
	}

	if err := db.WithContext(ctx).Unscoped().Model(&family).Updates(map[string]interface{}{
		"id_winmax4":  input.IdWinmax4,
		"designation": input.Designation,
		"is_active":   input.IsActive,
		"deleted_at":  nil,
	}).Error; err != nil {
		return nil, false, err
	}
	return &family, false, nil
}

func UpsertSubFamily(ctx context.Context, licenseId string, familyId int, input *NewFamily) (*SubFamily, bool, error) {
	db := config.GetDB()

	var subFamily SubFamily
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND family_id = ? AND code = ?", licenseId, familyId, input.Code).
		Take(&subFamily).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		subFamily = SubFamily{
			LicenseId:   licenseId,
			FamilyID:    familyId,
			Code:        input.Code,
			IdWinmax4:   input.IdWinmax4,
			Designation: input.Designation,
			IsActive:    utils.NewBool(input.IsActive),
		}
		if err := db.WithContext(ctx).Create(&subFamily).Error; err != nil {
			return nil, false, err
		}
		return &subFamily, true, nil
	}

	if err := db.WithContext(ctx).Unscoped().Model(&subFamily).Updates(map[string]interface{}{
		"id_winmax4":  input.IdWinmax4,
		"designation": input.Designation,
		"is_active":   input.IsActive,
		"deleted_at":  nil,
	}).Error; err != nil {
		return nil, false, err
	}
	return &subFamily, false, nil
}

func UpsertSubSubFamily(ctx context.Context, licenseId string, subFamilyId int, input *NewFamily) (*SubSubFamily, bool, error) {
	db := config.GetDB()

	var subSubFamily SubSubFamily
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND sub_family_id = ? AND code = ?", licenseId, subFamilyId, input.Code).
		Take(&subSubFamily).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		subSubFamily = SubSubFamily{
			LicenseId:   licenseId,
			SubFamilyID: subFamilyId,
			Code:        input.Code,
			IdWinmax4:   input.IdWinmax4,
			Designation: input.Designation,
			IsActive:    utils.NewBool(input.IsActive),
		}
		if err := db.WithContext(ctx).Create(&subSubFamily).Error; err != nil {
			return nil, false, err
		}
		return &subSubFamily, true, nil
	}

	if err := db.WithContext(ctx).Unscoped().Model(&subSubFamily).Updates(map[string]interface{}{
		"id_winmax4":  input.IdWinmax4,
		"designation": input.Designation,
		"is_active":   input.IsActive,
		"deleted_at":  nil,
	}).Error; err != nil {
		return nil, false, err
	}
	return &subSubFamily, false, nil
}

// GetFamilyByCode resolves an article's family reference to a local row.
func GetFamilyByCode(ctx context.Context, licenseId string, code string) (*Family, error) {
	db := config.GetDB()
	var family Family
	err := db.WithContext(ctx).
		Where("license_id = ? AND code = ?", licenseId, code).
		Take(&family).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &family, nil
}

func GetSubFamilyByCode(ctx context.Context, licenseId string, familyId int, code string) (*SubFamily, error) {
	db := config.GetDB()
	var subFamily SubFamily
	err := db.WithContext(ctx).
		Where("license_id = ? AND family_id = ? AND code = ?", licenseId, familyId, code).
		Take(&subFamily).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &subFamily, nil
}

func GetSubSubFamilyByCode(ctx context.Context, licenseId string, subFamilyId int, code string) (*SubSubFamily, error) {
	db := config.GetDB()
	var subSubFamily SubSubFamily
	err := db.WithContext(ctx).
		Where("license_id = ? AND sub_family_id = ? AND code = ?", licenseId, subFamilyId, code).
		Take(&subSubFamily).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &subSubFamily, nil
}
