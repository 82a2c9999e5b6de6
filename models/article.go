package models

import (
	"context"
	"errors"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Article is the catalogue aggregate: prices, stocks and applied taxes hang
// off it and are replaced wholesale whenever the parent is re-synced. Family
// references are local ids resolved before the upsert; they are weak links,
// so an article without a family is legal.
type Article struct {
	ID               int            `gorm:"primary_key" json:"id"`
	LicenseId        string         `gorm:"uniqueIndex:idx_article_code,priority:1;size:100;not null" json:"license_id"`
	Code             string         `gorm:"uniqueIndex:idx_article_code,priority:2;size:50;not null" json:"code"`
	IdWinmax4        int            `gorm:"index" json:"id_winmax4"`
	Designation      string         `gorm:"size:255" json:"designation"`
	ShortDescription string         `gorm:"size:512" json:"short_description"`
	FamilyID         *int           `gorm:"index" json:"family_id"`
	SubFamilyID      *int           `json:"sub_family_id"`
	SubSubFamilyID   *int           `json:"sub_sub_family_id"`
	IsActive         *bool          `gorm:"not null;default:true" json:"is_active"`
	Prices           []ArticlePrice `gorm:"foreignKey:ArticleID" json:"prices"`
	Stocks           []ArticleStock `gorm:"foreignKey:ArticleID" json:"stocks"`
	Taxes            []ArticleTax   `gorm:"foreignKey:ArticleID" json:"taxes"`
	CreatedAt        int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type ArticlePrice struct {
	ID                int             `gorm:"primary_key" json:"id"`
	LicenseId         string          `gorm:"index;size:100;not null" json:"license_id"`
	ArticleID         int             `gorm:"index;not null" json:"article_id"`
	CurrencyCode      string          `gorm:"size:10;not null" json:"currency_code"`
	PriceLine         int             `json:"price_line"`
	PriceWithoutTaxes decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"price_without_taxes"`
	PriceWithTaxes    decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"price_with_taxes"`
	CreatedAt         int64           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         int64           `gorm:"autoUpdateTime" json:"updated_at"`
}

type ArticleStock struct {
	ID            int             `gorm:"primary_key" json:"id"`
	LicenseId     string          `gorm:"index;size:100;not null" json:"license_id"`
	ArticleID     int             `gorm:"index;not null" json:"article_id"`
	WarehouseCode string          `gorm:"size:50;not null" json:"warehouse_code"`
	Stock         decimal.Decimal `gorm:"type:DECIMAL(14,4)" json:"stock"`
	CreatedAt     int64           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     int64           `gorm:"autoUpdateTime" json:"updated_at"`
}

type ArticleTax struct {
	ID         int    `gorm:"primary_key" json:"id"`
	LicenseId  string `gorm:"index;size:100;not null" json:"license_id"`
	ArticleID  int    `gorm:"index;not null" json:"article_id"`
	TaxID      int    `gorm:"index;not null" json:"tax_id"`
	TaxFeeType int    `json:"tax_fee_type"`
	CreatedAt  int64  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  int64  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewArticle struct {
	Code             string
	IdWinmax4        int
	Designation      string
	ShortDescription string
	FamilyID         *int
	SubFamilyID      *int
	SubSubFamilyID   *int
	IsActive         bool
	Prices           []NewArticlePrice
	Stocks           []NewArticleStock
	Taxes            []NewArticleTax
}

type NewArticlePrice struct {
	CurrencyCode      string
	PriceLine         int
	PriceWithoutTaxes decimal.Decimal
	PriceWithTaxes    decimal.Decimal
}

type NewArticleStock struct {
	WarehouseCode string
	Stock         decimal.Decimal
}

type NewArticleTax struct {
	TaxID      int
	TaxFeeType int
}

// UpsertArticle writes the article header and replaces stocks and taxes in one
// transaction. Prices are replaced per currency: a fetch for EUR must not wipe
// USD price rows written by an earlier request in the same run.
func UpsertArticle(ctx context.Context, licenseId string, input *NewArticle) (*Article, bool, error) {
	db := config.GetDB()

	var article Article
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND code = ?", licenseId, input.Code).
		Take(&article).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	created := errors.Is(err, gorm.ErrRecordNotFound)

	txErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if created {
			article = Article{
				LicenseId:        licenseId,
				Code:             input.Code,
				IdWinmax4:        input.IdWinmax4,
				Designation:      input.Designation,
				ShortDescription: input.ShortDescription,
				FamilyID:         input.FamilyID,
				SubFamilyID:      input.SubFamilyID,
				SubSubFamilyID:   input.SubSubFamilyID,
				IsActive:         utils.NewBool(input.IsActive),
			}
			if err := tx.Create(&article).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Unscoped().Model(&article).Updates(map[string]interface{}{
				"id_winmax4":        input.IdWinmax4,
				"designation":       input.Designation,
				"short_description": input.ShortDescription,
				"family_id":         input.FamilyID,
				"sub_family_id":     input.SubFamilyID,
				"sub_sub_family_id": input.SubSubFamilyID,
				"is_active":         input.IsActive,
				"deleted_at":        nil,
			}).Error; err != nil {
				return err
			}
			if err := tx.Where("article_id = ?", article.ID).Delete(&ArticleStock{}).Error; err != nil {
				return err
			}
			if err := tx.Where("article_id = ?", article.ID).Delete(&ArticleTax{}).Error; err != nil {
				return err
			}
		}

		currencies := utils.UniqueSlice(pricedCurrencies(input.Prices))
		if len(currencies) > 0 {
			if err := tx.Where("article_id = ? AND currency_code IN ?", article.ID, currencies).
				Delete(&ArticlePrice{}).Error; err != nil {
				return err
			}
		}
		for _, price := range input.Prices {
			row := ArticlePrice{
				LicenseId:         licenseId,
				ArticleID:         article.ID,
				CurrencyCode:      price.CurrencyCode,
				PriceLine:         price.PriceLine,
				PriceWithoutTaxes: price.PriceWithoutTaxes,
				PriceWithTaxes:    price.PriceWithTaxes,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, stock := range input.Stocks {
			row := ArticleStock{
				LicenseId:     licenseId,
				ArticleID:     article.ID,
				WarehouseCode: stock.WarehouseCode,
				Stock:         stock.Stock,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, taxRef := range input.Taxes {
			row := ArticleTax{
				LicenseId:  licenseId,
				ArticleID:  article.ID,
				TaxID:      taxRef.TaxID,
				TaxFeeType: taxRef.TaxFeeType,
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
	return &article, created, nil
}

func pricedCurrencies(prices []NewArticlePrice) []string {
	codes := make([]string, 0, len(prices))
	for _, p := range prices {
		codes = append(codes, p.CurrencyCode)
	}
	return codes
}

func GetArticleByCode(ctx context.Context, licenseId string, code string) (*Article, error) {
	db := config.GetDB()
	var article Article
	err := db.WithContext(ctx).
		Preload("Prices").Preload("Stocks").Preload("Taxes").
		Where("license_id = ? AND code = ?", licenseId, code).
		Take(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &article, nil
}
