package winmax4

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/controlink-dev/winmax4-sync/models"
)

// syncFamilies walks the three-level catalogue tree. Each task owns a whole
// family subtree so children are always written after their parent and no two
// tasks touch the same rows.
func syncFamilies(ctx context.Context, run *models.SyncRun, license *models.License, client *Client, fullSync bool) error {
	params := url.Values{}
	params.Set("IncludeSubFamilies", "true")
	if err := applyWatermark(ctx, license.LicenseId, EntityFamilies, fullSync, params); err != nil {
		return err
	}
	fetchStart := time.Now()

	pages, err := client.GetPages(ctx, "/Files/Families", params)
	if err != nil {
		return err
	}

	var remote []familyJSON
	for _, page := range pages {
		var parsed familyPage
		if err := json.Unmarshal(page, &parsed); err != nil {
			return fmt.Errorf("decode families page: %w", err)
		}
		remote = append(remote, parsed.Data.Families...)
	}

	deactivated := 0
	if fullSync {
		var familyCodes, subCodes, subSubCodes []string
		for _, family := range remote {
			familyCodes = append(familyCodes, family.Code)
			for _, sub := range family.SubFamilies {
				subCodes = append(subCodes, sub.Code)
				for _, subSub := range sub.SubSubFamilies {
					subSubCodes = append(subSubCodes, subSub.Code)
				}
			}
		}
		// Leaves first so children never outlive their retired parent.
		n, err := models.DeactivateMissingByCode[models.SubSubFamily](ctx, license.LicenseId, subSubCodes)
		if err != nil {
			return err
		}
		deactivated += n
		n, err = models.DeactivateMissingByCode[models.SubFamily](ctx, license.LicenseId, subCodes)
		if err != nil {
			return err
		}
		deactivated += n
		n, err = models.DeactivateMissingByCode[models.Family](ctx, license.LicenseId, familyCodes)
		if err != nil {
			return err
		}
		deactivated += n
	}

	bctx := context.WithoutCancel(ctx)
	batch, err := DefaultRunner().CreateBatch(bctx, license.LicenseId, "sync-families", finalizeRun(bctx, run, deactivated))
	if err != nil {
		return err
	}

	licenseId := license.LicenseId
	tasks := make([]Task, 0, len(remote))
	for _, family := range remote {
		family := family
		tasks = append(tasks, newRecordTask(EntityFamilies, family.Code, func(ctx context.Context) error {
			return upsertFamilyTree(ctx, licenseId, family)
		}))
	}
	for _, chunk := range chunked(tasks) {
		batch.Add(chunk...)
	}
	batch.Close()

	return models.UpdateLastSyncedAt(ctx, license.LicenseId, EntityFamilies, fetchStart)
}

func upsertFamilyTree(ctx context.Context, licenseId string, family familyJSON) error {
	if family.Code == "" {
		return &ValidationError{Field: "Code", Reason: "missing in remote family"}
	}

	parent, _, err := models.UpsertFamily(ctx, licenseId, &models.NewFamily{
		Code:        family.Code,
		IdWinmax4:   family.ID,
		Designation: family.Designation,
		IsActive:    family.IsActive,
	})
	if err != nil {
		return err
	}

	for _, sub := range family.SubFamilies {
		if sub.Code == "" {
			return &ValidationError{Field: "SubFamilies.Code", Reason: "missing in remote sub-family"}
		}
		subFamily, _, err := models.UpsertSubFamily(ctx, licenseId, parent.ID, &models.NewFamily{
			Code:        sub.Code,
			IdWinmax4:   sub.ID,
			Designation: sub.Designation,
			IsActive:    sub.IsActive,
		})
		if err != nil {
			return err
		}

		for _, subSub := range sub.SubSubFamilies {
			if subSub.Code == "" {
				return &ValidationError{Field: "SubSubFamilies.Code", Reason: "missing in remote sub-sub-family"}
			}
			if _, _, err := models.UpsertSubSubFamily(ctx, licenseId, subFamily.ID, &models.NewFamily{
				Code:        subSub.Code,
				IdWinmax4:   subSub.ID,
				Designation: subSub.Designation,
				IsActive:    subSub.IsActive,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
