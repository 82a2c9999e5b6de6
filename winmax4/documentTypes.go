package winmax4

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/controlink-dev/winmax4-sync/models"
)

func syncDocumentTypes(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error {
	params := url.Values{}
	if err := applyWatermark(ctx, license.LicenseId, EntityDocumentTypes, fullSync, params); err != nil {
		return err
	}
	fetchStart := time.Now()

	pages, err := client.GetPages(ctx, "/Files/DocumentTypes", params)
	if err != nil {
		return err
	}

	var remote []documentTypeJSON
	for _, page := range pages {
		var parsed documentTypePage
		if err := json.Unmarshal(page, &parsed); err != nil {
			return fmt.Errorf("decode document types page: %w", err)
		}
		remote = append(remote, parsed.Data.DocumentTypes...)
	}

	deactivated := 0
	if fullSync {
		codes := make([]string, 0, len(remote))
		for _, item := range remote {
			codes = append(codes, item.Code)
		}
		deactivated, err = models.DeactivateMissingByCode[models.DocumentType](ctx, license.LicenseId, codes)
		if err != nil {
			return err
		}
	}

	bctx := context.WithoutCancel(ctx)
	batch, err := DefaultRunner().CreateBatch(bctx, license.LicenseId, "sync-document-types", finalizeRun(bctx, run, deactivated))
	if err != nil {
		return err
	}

	licenseId := license.LicenseId
	tasks := make([]Task, 0, len(remote))
	for _, item := range remote {
		item := item
		tasks = append(tasks, newRecordTask(EntityDocumentTypes, item.Code, func(ctx context.Context) error {
			if item.Code == "" {
				return &ValidationError{Field: "Code", Reason: "missing in remote document type"}
			}
			_, _, err := models.UpsertDocumentType(ctx, licenseId, &models.NewDocumentType{
				Code:            item.Code,
				IdWinmax4:       item.ID,
				Designation:     item.Designation,
				TransactionType: item.TransactionType,
				EntityType:      item.EntityType,
				IsActive:        item.IsActive,
			})
			return err
		}))
	}
	for _, chunk := range chunked(tasks) {
		batch.Add(chunk...)
	}
	batch.Close()

	return models.UpdateLastSyncedAt(ctx, license.LicenseId, EntityDocumentTypes, fetchStart)
}
