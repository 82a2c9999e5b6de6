package winmax4

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/controlink-dev/winmax4-sync/models"
	"github.com/controlink-dev/winmax4-sync/utils"
)

func syncTaxes(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error {
	params := url.Values{}
	if err := applyWatermark(ctx, license.LicenseId, EntityTaxes, fullSync, params); err != nil {
		return err
	}
	fetchStart := time.Now()

	pages, err := client.GetPages(ctx, "/Files/Taxes", params)
	if err != nil {
		return err
	}

	var remote []taxJSON
	for _, page := range pages {
		var parsed taxPage
		if err := json.Unmarshal(page, &parsed); err != nil {
			return fmt.Errorf("decode taxes page: %w", err)
		}
		remote = append(remote, parsed.Data.Taxes...)
	}

	deactivated := 0
	if fullSync {
		codes := make([]string, 0, len(remote))
		for _, item := range remote {
			codes = append(codes, item.Code)
		}
		deactivated, err = models.DeactivateMissingByCode[models.Tax](ctx, license.LicenseId, codes)
		if err != nil {
			return err
		}
	}

	bctx := context.WithoutCancel(ctx)
	batch, err := DefaultRunner().CreateBatch(bctx, license.LicenseId, "sync-taxes", finalizeRun(bctx, run, deactivated))
	if err != nil {
		return err
	}

	licenseId := license.LicenseId
	tasks := make([]Task, 0, len(remote))
	for _, item := range remote {
		item := item
		tasks = append(tasks, newRecordTask(EntityTaxes, item.Code, func(ctx context.Context) error {
			if item.Code == "" {
				return &ValidationError{Field: "Code", Reason: "missing in remote tax"}
			}
			rates := make([]models.NewTaxRate, 0, len(item.Rates))
			for _, rate := range item.Rates {
				rates = append(rates, models.NewTaxRate{
					FixedAmountRate: utils.DecimalFromNumber(rate.FixedAmountRate),
					PercentageRate:  utils.DecimalFromNumber(rate.PercentageRate),
				})
			}
			_, _, err := models.UpsertTax(ctx, licenseId, &models.NewTax{
				Code:        item.Code,
				Designation: item.Designation,
				IsActive:    item.IsActive,
				Rates:       rates,
			})
			return err
		}))
	}
	for _, chunk := range chunked(tasks) {
		batch.Add(chunk...)
	}
	batch.Close()

	return models.UpdateLastSyncedAt(ctx, license.LicenseId, EntityTaxes, fetchStart)
}
