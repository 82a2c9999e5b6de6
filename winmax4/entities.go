package winmax4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/models"
)

// syncEntities is two-way: the remote set is mirrored locally (matched by ERP
// id, since entity codes are reusable), then locally created entities are
// pushed and receive their ERP id back.
func syncEntities(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error {
	params := url.Values{}
	if err := applyWatermark(ctx, license.LicenseId, EntityEntities, fullSync, params); err != nil {
		return err
	}
	fetchStart := time.Now()

	pages, err := client.GetPages(ctx, "/Files/Entities", params)
	if err != nil {
		return err
	}

	var remote []entityJSON
	for _, page := range pages {
		var parsed entityPage
		if err := json.Unmarshal(page, &parsed); err != nil {
			return fmt.Errorf("decode entities page: %w", err)
		}
		remote = append(remote, parsed.Data.Entities...)
	}

	deactivated := 0
	if fullSync {
		// Rows without a remote id are local-only and must survive the diff.
		ids := make([]int, 0, len(remote))
		for _, item := range remote {
			ids = append(ids, item.ID)
		}
		ids = append(ids, 0)
		deactivated, err = models.DeactivateMissing[models.Entity](ctx, license.LicenseId, ids)
		if err != nil {
			return err
		}
	}

	bctx := context.WithoutCancel(ctx)
	batch, err := DefaultRunner().CreateBatch(bctx, license.LicenseId, "sync-entities", finalizeRun(bctx, run, deactivated))
	if err != nil {
		return err
	}

	licenseId := license.LicenseId
	tasks := make([]Task, 0, len(remote))
	for _, item := range remote {
		item := item
		tasks = append(tasks, newRecordTask(EntityEntities, item.Code, func(ctx context.Context) error {
			if item.ID == 0 {
				return &ValidationError{Field: "ID", Reason: "missing in remote entity"}
			}
			_, _, err := models.UpsertEntityFromRemote(ctx, licenseId, remoteEntityInput(item))
			return err
		}))
	}

	// Push direction: locally created entities go out before the batch closes
	// so a push failure lands in the same run's tally.
	pending, err := models.ListEntitiesPendingPush(ctx, license.LicenseId)
	if err != nil {
		return err
	}
	for _, entity := range pending {
		entity := entity
		tasks = append(tasks, newRecordTask(EntityEntities, entity.Code, func(ctx context.Context) error {
			return pushEntity(ctx, client, licenseId, entity)
		}))
	}

	for _, chunk := range chunked(tasks) {
		batch.Add(chunk...)
	}
	batch.Close()

	return models.UpdateLastSyncedAt(ctx, license.LicenseId, EntityEntities, fetchStart)
}

func remoteEntityInput(item entityJSON) *models.NewEntity {
	return &models.NewEntity{
		IdWinmax4:    item.ID,
		Code:         item.Code,
		Name:         item.Name,
		FiscalNumber: item.TaxPayerID,
		Address:      item.Address,
		ZipCode:      item.ZipCode,
		Locality:     item.Locality,
		CountryCode:  item.CountryCode,
		PhoneNumber:  item.Phone,
		MobilePhone:  item.MobilePhone,
		Email:        item.Email,
		EntityType:   item.EntityType,
		IsActive:     item.IsActive,
	}
}

func entityPayload(entity *models.Entity) map[string]interface{} {
	return map[string]interface{}{
		"Code":        entity.Code,
		"Name":        entity.Name,
		"TaxPayerID":  entity.FiscalNumber,
		"Address":     entity.Address,
		"ZipCode":     entity.ZipCode,
		"Locality":    entity.Locality,
		"CountryCode": entity.CountryCode,
		"Phone":       entity.PhoneNumber,
		"MobilePhone": entity.MobilePhone,
		"Email":       entity.Email,
		"EntityType":  entity.EntityType,
	}
}

// pushEntity creates the entity remotely. When the ERP reports the code is
// already taken the entity is re-pushed as an update against the existing
// remote record, which also reactivates it server-side. The ERP signals this
// through the result code, not the HTTP status.
func pushEntity(ctx context.Context, client *Client, licenseId string, entity *models.Entity) error {
	body, err := client.Do(ctx, http.MethodPost, "/Files/Entities", entityPayload(entity))
	if err != nil {
		var apiErr *ApiError
		if errors.As(err, &apiErr) && (apiErr.Code == resultCodeCodeInUse || apiErr.Status == http.StatusConflict) {
			return updateRemoteEntityByCode(ctx, client, licenseId, entity)
		}
		return err
	}

	var parsed entityMutationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode entity push response: %w", err)
	}
	if code := parsed.firstCode(); code != "" && code != resultCodeOK {
		return &ApiError{Status: http.StatusOK, Code: code, Message: parsed.firstMessage()}
	}
	if parsed.Data.Entity.ID == 0 {
		return &ApiError{Status: http.StatusOK, Message: "entity id missing in push response"}
	}
	return models.MarkEntityPushed(ctx, licenseId, entity.ID, parsed.Data.Entity.ID)
}

// updateRemoteEntityByCode finds the remote entity holding the code and
// overwrites it with the local state, claiming its id.
func updateRemoteEntityByCode(ctx context.Context, client *Client, licenseId string, entity *models.Entity) error {
	params := url.Values{}
	params.Set("Code", entity.Code)
	pages, err := client.GetPages(ctx, "/Files/Entities", params)
	if err != nil {
		return err
	}

	remoteId := 0
	for _, page := range pages {
		var parsed entityPage
		if err := json.Unmarshal(page, &parsed); err != nil {
			return fmt.Errorf("decode entities page: %w", err)
		}
		for _, item := range parsed.Data.Entities {
			if item.Code == entity.Code {
				remoteId = item.ID
				break
			}
		}
	}
	if remoteId == 0 {
		return &ReconciliationConflict{EntityType: EntityEntities, Code: entity.Code, Ref: "remote entity holding code"}
	}

	body, err := client.Do(ctx, http.MethodPut, "/Files/Entities/?id="+strconv.Itoa(remoteId), entityPayload(entity))
	if err != nil {
		return err
	}
	var parsed entityMutationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode entity update response: %w", err)
	}
	if code := parsed.firstCode(); code != "" && code != resultCodeOK {
		return &ApiError{Status: http.StatusOK, Code: code, Message: parsed.firstMessage()}
	}
	return models.MarkEntityPushed(ctx, licenseId, entity.ID, remoteId)
}

// UpdateRemoteEntity pushes local field changes for an already-linked entity.
func UpdateRemoteEntity(ctx context.Context, client *Client, licenseId string, entity *models.Entity) error {
	if entity.IdWinmax4 == 0 {
		return &ValidationError{Field: "id_winmax4", Reason: "entity was never pushed"}
	}
	body, err := client.Do(ctx, http.MethodPut, "/Files/Entities/?id="+strconv.Itoa(entity.IdWinmax4), entityPayload(entity))
	if err != nil {
		return err
	}
	var parsed apiResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode entity update response: %w", err)
	}
	if code := parsed.firstCode(); code != "" && code != resultCodeOK {
		return &ApiError{Status: http.StatusOK, Code: code, Message: parsed.firstMessage()}
	}
	return nil
}

// DeleteRemoteEntity removes the entity remotely. When the ERP refuses (the
// entity appears on documents) both sides fall back to deactivation.
func DeleteRemoteEntity(ctx context.Context, client *Client, licenseId string, entity *models.Entity) error {
	if entity.IdWinmax4 == 0 {
		return &ValidationError{Field: "id_winmax4", Reason: "entity was never pushed"}
	}

	body, err := client.Do(ctx, http.MethodDelete, "/Files/Entities/?id="+strconv.Itoa(entity.IdWinmax4), nil)
	refused := false
	if err != nil {
		var apiErr *ApiError
		if !errors.As(err, &apiErr) {
			return err
		}
		refused = true
	} else {
		var parsed apiResult
		if err := json.Unmarshal(body, &parsed); err == nil {
			if code := parsed.firstCode(); code != "" && code != resultCodeOK {
				refused = true
			}
		}
	}

	if refused {
		config.GetLogger().WithField("entity_code", entity.Code).
			Info("remote refused entity delete, deactivating instead")
		if err := UpdateRemoteEntity(ctx, client, licenseId, entity); err != nil {
			return err
		}
	}
	return models.DeactivateEntity(ctx, licenseId, entity.ID)
}
