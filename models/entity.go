package models

import (
	"context"
	"errors"

	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/controlink-dev/winmax4-sync/utils"
	"gorm.io/gorm"
)

// Entity is a customer or supplier. Unlike catalogue records, entities are
// matched by the ERP id rather than by code: codes can be edited remotely, the
// id cannot. Rows with IdWinmax4 == 0 were created locally and are pending
// their first push.
type Entity struct {
	ID           int            `gorm:"primary_key" json:"id"`
	LicenseId    string         `gorm:"index:idx_entity_remote,priority:1;size:100;not null" json:"license_id"`
	IdWinmax4    int            `gorm:"index:idx_entity_remote,priority:2" json:"id_winmax4"`
	Code         string         `gorm:"size:50" json:"code"`
	Name         string         `gorm:"size:255" json:"name"`
	FiscalNumber string         `gorm:"size:50" json:"fiscal_number"`
	Address      string         `gorm:"size:255" json:"address"`
	ZipCode      string         `gorm:"size:20" json:"zip_code"`
	Locality     string         `gorm:"size:100" json:"locality"`
	CountryCode  string         `gorm:"size:10" json:"country_code"`
	PhoneNumber  string         `gorm:"size:30" json:"phone_number"`
	MobilePhone  string         `gorm:"size:30" json:"mobile_phone"`
	Email        string         `gorm:"size:255" json:"email"`
	EntityType   int            `json:"entity_type"`
	IsActive     *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    int64          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    int64          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

type NewEntity struct {
	IdWinmax4    int
	Code         string
	Name         string
	FiscalNumber string
	Address      string
	ZipCode      string
	Locality     string
	CountryCode  string
	PhoneNumber  string
	MobilePhone  string
	Email        string
	EntityType   int
	IsActive     bool
}

// CreateEntity stores a locally authored entity. It carries no ERP id yet and
// is picked up by the next entity sync's push phase.
func CreateEntity(ctx context.Context, licenseId string, input *NewEntity) (*Entity, error) {
	if input.Code == "" {
		return nil, utils.ErrorValidation("code", "required")
	}
	if input.Name == "" {
		return nil, utils.ErrorValidation("name", "required")
	}
	if input.PhoneNumber != "" && input.CountryCode != "" {
		if err := utils.ValidatePhoneNumber(input.PhoneNumber, input.CountryCode); err != nil {
			return nil, utils.ErrorValidation("phone_number", err.Error())
		}
	}

	entity := Entity{
		LicenseId:    licenseId,
		Code:         input.Code,
		Name:         input.Name,
		FiscalNumber: input.FiscalNumber,
		Address:      input.Address,
		ZipCode:      input.ZipCode,
		Locality:     input.Locality,
		CountryCode:  input.CountryCode,
		PhoneNumber:  input.PhoneNumber,
		MobilePhone:  input.MobilePhone,
		Email:        input.Email,
		EntityType:   input.EntityType,
		IsActive:     utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// UpdateEntity applies local edits by local id. The ERP id and license never
// change here; pushing the edit remotely is the caller's concern.
func UpdateEntity(ctx context.Context, licenseId string, id int, input *NewEntity) (*Entity, error) {
	if input.Code == "" {
		return nil, utils.ErrorValidation("code", "required")
	}
	if input.Name == "" {
		return nil, utils.ErrorValidation("name", "required")
	}
	if input.PhoneNumber != "" && input.CountryCode != "" {
		if err := utils.ValidatePhoneNumber(input.PhoneNumber, input.CountryCode); err != nil {
			return nil, utils.ErrorValidation("phone_number", err.Error())
		}
	}

	entity, err := utils.FetchModel[Entity](ctx, licenseId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(entity).Updates(map[string]interface{}{
		"code":          input.Code,
		"name":          input.Name,
		"fiscal_number": input.FiscalNumber,
		"address":       input.Address,
		"zip_code":      input.ZipCode,
		"locality":      input.Locality,
		"country_code":  input.CountryCode,
		"phone_number":  input.PhoneNumber,
		"mobile_phone":  input.MobilePhone,
		"email":         input.Email,
		"entity_type":   input.EntityType,
	}).Error; err != nil {
		return nil, err
	}
	return entity, nil
}

// UpsertEntityFromRemote matches by the ERP id. All mutable fields, including
// the code, follow the remote side.
func UpsertEntityFromRemote(ctx context.Context, licenseId string, input *NewEntity) (*Entity, bool, error) {
	db := config.GetDB()

	var entity Entity
	err := db.WithContext(ctx).Unscoped().
		Where("license_id = ? AND id_winmax4 = ?", licenseId, input.IdWinmax4).
		Take(&entity).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		entity = Entity{
			LicenseId:    licenseId,
			IdWinmax4:    input.IdWinmax4,
			Code:         input.Code,
			Name:         input.Name,
			FiscalNumber: input.FiscalNumber,
			Address:      input.Address,
			ZipCode:      input.ZipCode,
			Locality:     input.Locality,
			CountryCode:  input.CountryCode,
			PhoneNumber:  input.PhoneNumber,
			MobilePhone:  input.MobilePhone,
			Email:        input.Email,
			EntityType:   input.EntityType,
			IsActive:     utils.NewBool(input.IsActive),
		}
		if err := db.WithContext(ctx).Create(&entity).Error; err != nil {
			return nil, false, err
		}
		return &entity, true, nil
	}

	if err := db.WithContext(ctx).Unscoped().Model(&entity).Updates(map[string]interface{}{
		"code":          input.Code,
		"name":          input.Name,
		"fiscal_number": input.FiscalNumber,
		"address":       input.Address,
		"zip_code":      input.ZipCode,
		"locality":      input.Locality,
		"country_code":  input.CountryCode,
		"phone_number":  input.PhoneNumber,
		"mobile_phone":  input.MobilePhone,
		"email":         input.Email,
		"entity_type":   input.EntityType,
		"is_active":     input.IsActive,
		"deleted_at":    nil,
	}).Error; err != nil {
		return nil, false, err
	}
	return &entity, false, nil
}

func GetEntityByIdWinmax4(ctx context.Context, licenseId string, idWinmax4 int) (*Entity, error) {
	db := config.GetDB()
	var entity Entity
	err := db.WithContext(ctx).
		Where("license_id = ? AND id_winmax4 = ?", licenseId, idWinmax4).
		Take(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &entity, nil
}

// ListEntitiesPendingPush returns locally created entities that have never
// been assigned an ERP id.
func ListEntitiesPendingPush(ctx context.Context, licenseId string) ([]*Entity, error) {
	db := config.GetDB()
	var entities []*Entity
	err := db.WithContext(ctx).
		Where("license_id = ? AND id_winmax4 = 0", licenseId).
		Order("id").
		Find(&entities).Error
	return entities, err
}

// MarkEntityPushed records the ERP id handed back by a successful push.
func MarkEntityPushed(ctx context.Context, licenseId string, id int, idWinmax4 int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Entity{}).
		Where("license_id = ? AND id = ?", licenseId, id).
		Update("id_winmax4", idWinmax4).Error
}

// DeactivateEntity retires an entity by local id. It is also the fallback when
// the ERP refuses a hard delete because the entity already appears on documents.
func DeactivateEntity(ctx context.Context, licenseId string, id int) error {
	db := config.GetDB()
	updates := map[string]interface{}{"is_active": false}
	if config.UseSoftDeletes() {
		updates["deleted_at"] = gorm.Expr("NOW()")
	}
	return db.WithContext(ctx).Model(&Entity{}).
		Where("license_id = ? AND id = ?", licenseId, id).
		Updates(updates).Error
}
