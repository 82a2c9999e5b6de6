package models

import (
	"context"
	"errors"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"gorm.io/gorm"
)

// DocumentType mirrors the ERP's document-type catalogue. TransactionType and
// EntityType are the ERP's own enum ints, carried verbatim.
type DocumentType struct {
	ID              int            `gorm:"primary_key" json:"id"`
	LicenseId       string         `gorm:"uniqueIndex:idx_document_type_code,priority:1;size:100;not null" json:"license_id"`
	Code            string         `gorm:"uniqueIndex:idx_document_type_code,priority:2;size:50;not null" json:"code"`
	IdWinmax4       int            `gorm:"index" json:"id_winmax4"`
	Designation     string         `gorm:"size:255" json:"designation"`
	TransactionType int            `json:"transaction_type"`
	EntityType      int            `json:"entity_type"`
	IsActive        *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type NewDocumentType struct {
	Code            string
	IdWinmax4       int
	Designation     string
	TransactionType int
	EntityType      int
	IsActive        bool
}

func UpsertDocumentType(ctx context.Context, licenseId string, input *NewDocumentType) (*DocumentType, bool, error) {
	db := config.GetDB()

	var docType DocumentType
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND code = ?", licenseId, input.Code).
		Take(&docType).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		docType = DocumentType{
			LicenseId:       licenseId,
			Code:            input.Code,
			IdWinmax4:       input.IdWinmax4,
			Designation:     input.Designation,
			TransactionType: input.TransactionType,
			EntityType:      input.EntityType,
			IsActive:        utils.NewBool(input.IsActive),
		}
		if err := db.WithContext(ctx).Create(&docType).Error; err != nil {
			return nil, false, err
		}
		return &docType, true, nil
	}

	if err := db.WithContext(ctx).Unscoped().Model(&docType).Updates(map[string]interface{}{
		"id_winmax4":       input.IdWinmax4,
		"designation":      input.Designation,
		"transaction_type": input.TransactionType,
		"entity_type":      input.EntityType,
		"is_active":        input.IsActive,
		"deleted_at":       nil,
	}).Error; err != nil {
		return nil, false, err
	}
	return &docType, false, nil
}

// GetDocumentTypeByCode is used when building a document push payload.
func GetDocumentTypeByCode(ctx context.Context, licenseId string, code string) (*DocumentType, error) {
	db := config.GetDB()
	var docType DocumentType
	err := db.WithContext(ctx).
		Where("license_id = ? AND code = ?", licenseId, code).
		Take(&docType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &docType, nil
}
