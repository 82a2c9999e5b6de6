package winmax4

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/controlink-dev/winmax4-sync/models"
)

func syncPaymentTypes(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error {
	params := url.Values{}
	if err := applyWatermark(ctx, license.LicenseId, EntityPaymentTypes, fullSync, params); err != nil {
		return err
	}
	fetchStart := time.Now()

	pages, err := client.GetPages(ctx, "/Files/PaymentTypes", params)
	if err != nil {
		return err
	}

	var remote []paymentTypeJSON
	for _, page := range pages {
		var parsed paymentTypePage
		if err := json.Unmarshal(page, &parsed); err != nil {
			return fmt.Errorf("decode payment types page: %w", err)
		}
		remote = append(remote, parsed.Data.PaymentTypes...)
	}

	deactivated := 0
	if fullSync {
		codes := make([]string, 0, len(remote))
		for _, item := range remote {
			codes = append(codes, item.Code)
		}
		deactivated, err = models.DeactivateMissingByCode[models.PaymentType](ctx, license.LicenseId, codes)
		if err != nil {
			return err
		}
	}

	bctx := context.WithoutCancel(ctx)
	batch, err := DefaultRunner().CreateBatch(bctx, license.LicenseId, "sync-payment-types", finalizeRun(bctx, run, deactivated))
	if err != nil {
		return err
	}

	licenseId := license.LicenseId
	tasks := make([]Task, 0, len(remote))
	for _, item := range remote {
		item := item
		tasks = append(tasks, newRecordTask(EntityPaymentTypes, item.Code, func(ctx context.Context) error {
			if item.Code == "" {
				return &ValidationError{Field: "Code", Reason: "missing in remote payment type"}
			}
			_, _, err := models.UpsertPaymentType(ctx, licenseId, &models.NewPaymentType{
				Code:        item.Code,
				IdWinmax4:   item.ID,
				Designation: item.Designation,
				IsActive:    item.IsActive,
			})
			return err
		}))
	}
	for _, chunk := range chunked(tasks) {
		batch.Add(chunk...)
	}
	batch.Close()

	return models.UpdateLastSyncedAt(ctx, license.LicenseId, EntityPaymentTypes, fetchStart)
}
