package winmax4

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/controlink-dev/winmax4-sync/models"
)

func syncWarehouses(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error {
	params := url.Values{}
	if err := applyWatermark(ctx, license.LicenseId, EntityWarehouses, fullSync, params); err != nil {
		return err
	}
	fetchStart := time.Now()

	pages, err := client.GetPages(ctx, "/Files/Warehouses", params)
	if err != nil {
		return err
	}

	var remote []warehouseJSON
	for _, page := range pages {
		var parsed warehousePage
		if err := json.Unmarshal(page, &parsed); err != nil {
			return fmt.Errorf("decode warehouses page: %w", err)
		}
		remote = append(remote, parsed.Data.Warehouses...)
	}

	deactivated := 0
	if fullSync {
		codes := make([]string, 0, len(remote))
		for _, item := range remote {
			codes = append(codes, item.Code)
		}
		deactivated, err = models.DeactivateMissingByCode[models.Warehouse](ctx, license.LicenseId, codes)
		if err != nil {
			return err
		}
	}

	bctx := context.WithoutCancel(ctx)
	batch, err := DefaultRunner().CreateBatch(bctx, license.LicenseId, "sync-warehouses", finalizeRun(bctx, run, deactivated))
	if err != nil {
		return err
	}

	licenseId := license.LicenseId
	tasks := make([]Task, 0, len(remote))
	for _, item := range remote {
		item := item
		tasks = append(tasks, newRecordTask(EntityWarehouses, item.Code, func(ctx context.Context) error {
			if item.Code == "" {
				return &ValidationError{Field: "Code", Reason: "missing in remote warehouse"}
			}
			_, _, err := models.UpsertWarehouse(ctx, licenseId, &models.NewWarehouse{
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

	return models.UpdateLastSyncedAt(ctx, license.LicenseId, EntityWarehouses, fetchStart)
}
