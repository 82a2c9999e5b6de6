package winmax4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/controlink-dev/winmax4-sync/models"
	"github.com/controlink-dev/winmax4-sync/utils"
)

// syncArticles fetches the catalogue once per known currency, since prices
// arrive embedded in the article payload for the requested currency. Records
// are merged by code across the per-currency fetches before dispatch.
func syncArticles(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error {
	currencyCodes, err := models.ListActiveCurrencyCodes(ctx, license.LicenseId)
	if err != nil {
		return err
	}

	fetchStart := time.Now()

	byCode := make(map[string]*articleJSON)
	var order []string

	fetchOnce := func(currencyCode string) error {
		params := url.Values{}
		params.Set("IncludeTaxes", "true")
		params.Set("IncludeCategories", "true")
		params.Set("IncludeExtras", "true")
		params.Set("IncludeHolds", "true")
		params.Set("IncludeDescriptives", "true")
		params.Set("IncludeQuestions", "true")
		if currencyCode != "" {
			params.Add("PriceCurrencyCode", currencyCode)
		}
		if err := applyWatermark(ctx, license.LicenseId, EntityArticles, fullSync, params); err != nil {
			return err
		}

		pages, err := client.GetPages(ctx, "/Files/Articles", params)
		if err != nil {
			return err
		}
		for _, page := range pages {
			var parsed articlePage
			if err := json.Unmarshal(page, &parsed); err != nil {
				return fmt.Errorf("decode articles page: %w", err)
			}
			for _, item := range parsed.Data.Articles {
				existing, ok := byCode[item.Code]
				if !ok {
					item := item
					byCode[item.Code] = &item
					order = append(order, item.Code)
					continue
				}
				existing.Prices = append(existing.Prices, item.Prices...)
			}
		}
		return nil
	}

	if len(currencyCodes) == 0 {
		if err := fetchOnce(""); err != nil {
			return err
		}
	} else {
		for _, currencyCode := range currencyCodes {
			if err := fetchOnce(currencyCode); err != nil {
				return err
			}
		}
	}

	deactivated := 0
	if fullSync {
		deactivated, err = models.DeactivateMissingByCode[models.Article](ctx, license.LicenseId, order)
		if err != nil {
			return err
		}
	}

	bctx := context.WithoutCancel(ctx)
	batch, err := DefaultRunner().CreateBatch(bctx, license.LicenseId, "sync-articles", finalizeRun(bctx, run, deactivated))
	if err != nil {
		return err
	}

	licenseId := license.LicenseId
	tasks := make([]Task, 0, len(order))
	for _, code := range order {
		item := byCode[code]
		tasks = append(tasks, newRecordTask(EntityArticles, code, func(ctx context.Context) error {
			return upsertRemoteArticle(ctx, licenseId, item)
		}))
	}
	for _, chunk := range chunked(tasks) {
		batch.Add(chunk...)
	}
	batch.Close()

	return models.UpdateLastSyncedAt(ctx, license.LicenseId, EntityArticles, fetchStart)
}

// upsertRemoteArticle resolves family and tax references to local rows first.
// The family link is weak: an article without one is stored as-is, while an
// unknown code skips this record only; the next pass picks it up once the
// parent has been synced.
func upsertRemoteArticle(ctx context.Context, licenseId string, item *articleJSON) error {
	if item.Code == "" {
		return &ValidationError{Field: "Code", Reason: "missing in remote article"}
	}

	var familyId, subFamilyId, subSubFamilyId *int
	if item.FamilyCode != "" {
		family, err := models.GetFamilyByCode(ctx, licenseId, item.FamilyCode)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return &ReconciliationConflict{EntityType: EntityArticles, Code: item.Code, Ref: "family " + item.FamilyCode}
			}
			return err
		}
		familyId = &family.ID

		if item.SubFamilyCode != "" {
			subFamily, err := models.GetSubFamilyByCode(ctx, licenseId, family.ID, item.SubFamilyCode)
			if err != nil {
				if errors.Is(err, utils.ErrorRecordNotFound) {
					return &ReconciliationConflict{EntityType: EntityArticles, Code: item.Code, Ref: "sub-family " + item.SubFamilyCode}
				}
				return err
			}
			subFamilyId = &subFamily.ID

			if item.SubSubFamilyCode != "" {
				subSubFamily, err := models.GetSubSubFamilyByCode(ctx, licenseId, subFamily.ID, item.SubSubFamilyCode)
				if err != nil {
					if errors.Is(err, utils.ErrorRecordNotFound) {
						return &ReconciliationConflict{EntityType: EntityArticles, Code: item.Code, Ref: "sub-sub-family " + item.SubSubFamilyCode}
					}
					return err
				}
				subSubFamilyId = &subSubFamily.ID
			}
		}
	}

	taxes := make([]models.NewArticleTax, 0, len(item.Taxes))
	for _, taxRef := range item.Taxes {
		tax, err := models.GetTaxByCode(ctx, licenseId, taxRef.TaxFeeCode)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return &ReconciliationConflict{EntityType: EntityArticles, Code: item.Code, Ref: "tax " + taxRef.TaxFeeCode}
			}
			return err
		}
		taxes = append(taxes, models.NewArticleTax{TaxID: tax.ID, TaxFeeType: taxRef.TaxFeeType})
	}

	prices := make([]models.NewArticlePrice, 0, len(item.Prices))
	for _, price := range item.Prices {
		prices = append(prices, models.NewArticlePrice{
			CurrencyCode:      price.CurrencyCode,
			PriceLine:         price.PriceLine,
			PriceWithoutTaxes: utils.DecimalFromNumber(price.SalesPriceWithoutTaxes),
			PriceWithTaxes:    utils.DecimalFromNumber(price.SalesPriceWithTaxes),
		})
	}

	stocks := make([]models.NewArticleStock, 0, len(item.Stocks))
	for _, stock := range item.Stocks {
		stocks = append(stocks, models.NewArticleStock{
			WarehouseCode: stock.WarehouseCode,
			Stock:         utils.DecimalFromNumber(stock.Current),
		})
	}

	_, _, err := models.UpsertArticle(ctx, licenseId, &models.NewArticle{
		Code:             item.Code,
		IdWinmax4:        item.ID,
		Designation:      item.Designation,
		ShortDescription: item.ShortDescription,
		FamilyID:         familyId,
		SubFamilyID:      subFamilyId,
		SubSubFamilyID:   subSubFamilyId,
		IsActive:         item.IsActive,
		Prices:           prices,
		Stocks:           stocks,
		Taxes:            taxes,
	})
	return err
}
