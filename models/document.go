package models

import (
	"context"
	"errors"
	"time"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Documents flow the other way: they are authored locally and pushed to the
// ERP, which assigns the official series and number. A document keeps its
// push status so failed pushes can be retried without re-entering data.
const (
	DocumentStatusPending = "pending"
	DocumentStatusPushed  = "pushed"
	DocumentStatusFailed  = "failed"
)

type Document struct {
	ID                  int                `gorm:"primary_key" json:"id"`
	LicenseId           string             `gorm:"index;size:100;not null" json:"license_id"`
	DocumentTypeCode    string             `gorm:"size:50;not null" json:"document_type_code"`
	Serie               string             `gorm:"size:20" json:"serie"`
	Number              int                `json:"number"`
	EntityID            int                `gorm:"index;not null" json:"entity_id"`
	WarehouseCode       string             `gorm:"size:50;not null" json:"warehouse_code"`
	TargetWarehouseCode string             `gorm:"size:50" json:"target_warehouse_code"`
	DocumentDate        time.Time          `json:"document_date"`
	TotalWithoutTaxes   decimal.Decimal    `gorm:"type:DECIMAL(14,4)" json:"total_without_taxes"`
	TotalWithTaxes      decimal.Decimal    `gorm:"type:DECIMAL(14,4)" json:"total_with_taxes"`
	Status              string             `gorm:"size:20;not null;default:'pending'" json:"status"`
	PushError           string             `gorm:"size:1024" json:"push_error"`
	Details             []DocumentDetail   `gorm:"foreignKey:DocumentID" json:"details"`
	Taxes               []DocumentTax      `gorm:"foreignKey:DocumentID" json:"taxes"`
	Relations           []DocumentRelation `gorm:"foreignKey:DocumentID" json:"relations"`
	CreatedAt           int64              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           int64              `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt     `gorm:"index" json:"deleted_at"`
}

type DocumentDetail struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	LicenseId           string          `gorm:"index;size:100;not null" json:"license_id"`
	DocumentID          int             `gorm:"index;not null" json:"document_id"`
	ArticleCode         string          `gorm:"size:50;not null" json:"article_code"`
	Designation         string          `gorm:"size:255" json:"designation"`
	Quantity            decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"quantity"`
	UnitPrice           decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"unit_price"`
	DiscountPercentage  decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"discount_percentage"`
	DiscountPercentage2 decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"discount_percentage_2"`
	TaxFeeCode          string          `gorm:"size:50" json:"tax_fee_code"`
	CreatedAt           int64           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           int64           `gorm:"autoUpdateTime" json:"updated_at"`
}

type DocumentTax struct {
	ID         int             `gorm:"primary_key" json:"id"`
	LicenseId  string          `gorm:"index;size:100;not null" json:"license_id"`
	DocumentID int             `gorm:"index;not null" json:"document_id"`
	TaxFeeCode string          `gorm:"size:50;not null" json:"tax_fee_code"`
	Percentage decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"percentage"`
	Total      decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"total"`
	CreatedAt  int64           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  int64           `gorm:"autoUpdateTime" json:"updated_at"`
}

// DocumentRelation links a correcting document to the one it amends, in ERP
// coordinates so the payload can be built without extra lookups.
type DocumentRelation struct {
	ID                 int    `gorm:"primary_key" json:"id"`
	LicenseId          string `gorm:"index;size:100;not null" json:"license_id"`
	DocumentID         int    `gorm:"index;not null" json:"document_id"`
	RelatedTypeCode    string `gorm:"size:50;not null" json:"related_type_code"`
	RelatedSerie       string `gorm:"size:20" json:"related_serie"`
	RelatedNumber      int    `json:"related_number"`
	RelatedDetailOrder int    `json:"related_detail_order"`
	CreatedAt          int64  `gorm:"autoCreateTime" json:"created_at"`
}

type NewDocument struct {
	DocumentTypeCode    string
	EntityID            int
	WarehouseCode       string
	TargetWarehouseCode string
	DocumentDate        time.Time
	TotalWithoutTaxes   decimal.Decimal
	TotalWithTaxes      decimal.Decimal
	Details             []NewDocumentDetail
	Taxes               []NewDocumentTax
	Relations           []NewDocumentRelation
}

type NewDocumentDetail struct {
	ArticleCode         string
	Designation         string
	Quantity            decimal.Decimal
	UnitPrice           decimal.Decimal
	DiscountPercentage  decimal.Decimal
	DiscountPercentage2 decimal.Decimal
	TaxFeeCode          string
}

type NewDocumentTax struct {
	TaxFeeCode string
	Percentage decimal.Decimal
	Total      decimal.Decimal
}

type NewDocumentRelation struct {
	RelatedTypeCode    string
	RelatedSerie       string
	RelatedNumber      int
	RelatedDetailOrder int
}

// CreateDocument stores the document and all its lines in one transaction,
// status pending. Pushing happens out of band.
func CreateDocument(ctx context.Context, licenseId string, input *NewDocument) (*Document, error) {
	db := config.GetDB()

	if input.WarehouseCode == "" {
		return nil, utils.ErrorValidation("warehouse_code", "required")
	}
	if err := utils.ValidateResourceId[Entity](ctx, licenseId, input.EntityID); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.ErrorValidation("entity_id", "unknown entity")
		}
		return nil, err
	}

	document := Document{
		LicenseId:           licenseId,
		DocumentTypeCode:    input.DocumentTypeCode,
		EntityID:            input.EntityID,
		WarehouseCode:       input.WarehouseCode,
		TargetWarehouseCode: input.TargetWarehouseCode,
		DocumentDate:        input.DocumentDate,
		TotalWithoutTaxes:   input.TotalWithoutTaxes,
		TotalWithTaxes:      input.TotalWithTaxes,
		Status:              DocumentStatusPending,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&document).Error; err != nil {
			return err
		}
		for _, detail := range input.Details {
			row := DocumentDetail{
				LicenseId:           licenseId,
				DocumentID:          document.ID,
				ArticleCode:         detail.ArticleCode,
				Designation:         detail.Designation,
				Quantity:            detail.Quantity,
				UnitPrice:           detail.UnitPrice,
				DiscountPercentage:  detail.DiscountPercentage,
				DiscountPercentage2: detail.DiscountPercentage2,
				TaxFeeCode:          detail.TaxFeeCode,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, docTax := range input.Taxes {
			row := DocumentTax{
				LicenseId:  licenseId,
				DocumentID: document.ID,
				TaxFeeCode: docTax.TaxFeeCode,
				Percentage: docTax.Percentage,
				Total:      docTax.Total,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, relation := range input.Relations {
			row := DocumentRelation{
				LicenseId:          licenseId,
				DocumentID:         document.ID,
				RelatedTypeCode:    relation.RelatedTypeCode,
				RelatedSerie:       relation.RelatedSerie,
				RelatedNumber:      relation.RelatedNumber,
				RelatedDetailOrder: relation.RelatedDetailOrder,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &document, nil
}

func GetDocument(ctx context.Context, licenseId string, id int) (*Document, error) {
	db := config.GetDB()
	var document Document
	err := db.WithContext(ctx).
		Preload("Details").Preload("Taxes").Preload("Relations").
		Where("license_id = ?", licenseId).
		First(&document, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &document, nil
}

// ListDocumentsPendingPush also picks up earlier failures so retries are
// automatic on the next run.
func ListDocumentsPendingPush(ctx context.Context, licenseId string) ([]*Document, error) {
	db := config.GetDB()
	var documents []*Document
	err := db.WithContext(ctx).
		Preload("Details").Preload("Taxes").Preload("Relations").
		Where("license_id = ? AND status IN ?", licenseId, []string{DocumentStatusPending, DocumentStatusFailed}).
		Order("id").
		Find(&documents).Error
	return documents, err
}

// MarkDocumentPushed records the series and number assigned by the ERP.
func MarkDocumentPushed(ctx context.Context, licenseId string, id int, serie string, number int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Document{}).
		Where("license_id = ? AND id = ?", licenseId, id).
		Updates(map[string]interface{}{
			"status":     DocumentStatusPushed,
			"serie":      serie,
			"number":     number,
			"push_error": "",
		}).Error
}

func MarkDocumentFailed(ctx context.Context, licenseId string, id int, reason string) error {
	db := config.GetDB()
	if len(reason) > 1024 {
		reason = reason[:1024]
	}
	return db.WithContext(ctx).Model(&Document{}).
		Where("license_id = ? AND id = ?", licenseId, id).
		Updates(map[string]interface{}{
			"status":     DocumentStatusFailed,
			"push_error": reason,
		}).Error
}
