package winmax4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/controlink-dev/winmax4-sync/models"
	"github.com/controlink-dev/winmax4-sync/utils"
)

// ERP transaction-type enum value for credit notes.
const transactionTypeCreditNote = 3

// syncDocuments runs in the push direction only: locally authored documents
// go to the ERP, which assigns the official series and number. Failed pushes
// stay retryable and are re-dispatched on the next run.
func syncDocuments(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error {
	pending, err := models.ListDocumentsPendingPush(ctx, license.LicenseId)
	if err != nil {
		return err
	}

	bctx := context.WithoutCancel(ctx)
	batch, err := DefaultRunner().CreateBatch(bctx, license.LicenseId, "sync-documents", finalizeRun(bctx, run, 0))
	if err != nil {
		return err
	}

	licenseId := license.LicenseId
	tasks := make([]Task, 0, len(pending))
	for _, document := range pending {
		document := document
		tasks = append(tasks, newRecordTask(EntityDocuments, fmt.Sprintf("document-%d", document.ID), func(ctx context.Context) error {
			return pushDocument(ctx, client, licenseId, document)
		}))
	}
	for _, chunk := range chunked(tasks) {
		batch.Add(chunk...)
	}
	batch.Close()

	return models.UpdateLastSyncedAt(ctx, license.LicenseId, EntityDocuments, time.Now())
}

func pushDocument(ctx context.Context, client *Client, licenseId string, document *models.Document) error {
	payload, err := buildDocumentPayload(ctx, licenseId, document)
	if err != nil {
		if markErr := models.MarkDocumentFailed(ctx, licenseId, document.ID, err.Error()); markErr != nil {
			return markErr
		}
		return err
	}

	body, err := client.Do(ctx, http.MethodPost, "/Transactions/Documents", payload)
	if err != nil {
		if markErr := models.MarkDocumentFailed(ctx, licenseId, document.ID, err.Error()); markErr != nil {
			return markErr
		}
		return err
	}

	var parsed documentPushResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode document push response: %w", err)
	}
	if code := parsed.firstCode(); code != "" && code != resultCodeOK {
		pushErr := &ApiError{Status: http.StatusOK, Code: code, Message: parsed.firstMessage()}
		if markErr := models.MarkDocumentFailed(ctx, licenseId, document.ID, pushErr.Error()); markErr != nil {
			return markErr
		}
		return pushErr
	}

	return models.MarkDocumentPushed(ctx, licenseId, document.ID,
		parsed.Data.Document.Serie, parsed.Data.Document.Number)
}

// buildDocumentPayload validates references before any network call: the
// document type, warehouse and entity must exist locally, and a credit note
// must carry a relation to the document it amends.
func buildDocumentPayload(ctx context.Context, licenseId string, document *models.Document) (*documentPushRequest, error) {
	docType, err := models.GetDocumentTypeByCode(ctx, licenseId, document.DocumentTypeCode)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &ReconciliationConflict{
				EntityType: EntityDocuments,
				Code:       fmt.Sprintf("document-%d", document.ID),
				Ref:        "document type " + document.DocumentTypeCode,
			}
		}
		return nil, err
	}

	if _, err := models.GetWarehouseByCode(ctx, licenseId, document.WarehouseCode); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, &ReconciliationConflict{
				EntityType: EntityDocuments,
				Code:       fmt.Sprintf("document-%d", document.ID),
				Ref:        "warehouse " + document.WarehouseCode,
			}
		}
		return nil, err
	}

	entity, err := utils.FetchModel[models.Entity](ctx, licenseId, document.EntityID)
	if err != nil {
		return nil, &ReconciliationConflict{
			EntityType: EntityDocuments,
			Code:       fmt.Sprintf("document-%d", document.ID),
			Ref:        fmt.Sprintf("entity %d", document.EntityID),
		}
	}

	if len(document.Details) == 0 {
		return nil, &ValidationError{Field: "details", Reason: "document has no detail lines"}
	}
	if docType.TransactionType == transactionTypeCreditNote && len(document.Relations) == 0 {
		return nil, &ValidationError{Field: "relations", Reason: "credit note requires a related document"}
	}

	details := make([]documentDetailJSON, 0, len(document.Details))
	for _, detail := range document.Details {
		details = append(details, documentDetailJSON{
			ArticleCode:         detail.ArticleCode,
			Quantity:            json.Number(detail.Quantity.String()),
			DiscountPercentage:  json.Number(detail.DiscountPercentage.String()),
			DiscountPercentage2: json.Number(detail.DiscountPercentage2.String()),
			TaxFeeCode:          detail.TaxFeeCode,
		})
	}

	relations := make([]documentRelationRef, 0, len(document.Relations))
	for _, relation := range document.Relations {
		relations = append(relations, documentRelationRef{
			DocumentTypeCode:    relation.RelatedTypeCode,
			DocumentSerie:       relation.RelatedSerie,
			DocumentNumber:      relation.RelatedNumber,
			DocumentDetailOrder: relation.RelatedDetailOrder,
		})
	}

	return &documentPushRequest{
		DocumentTypeCode:    document.DocumentTypeCode,
		WarehouseCode:       document.WarehouseCode,
		TargetWarehouseCode: document.TargetWarehouseCode,
		Entity: documentEntityRef{
			Code:       entity.Code,
			TaxPayerID: entity.FiscalNumber,
		},
		Details:   details,
		Relations: relations,
	}, nil
}
