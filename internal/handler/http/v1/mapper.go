package v1

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/service"
)

// DTOToIncidentPatch преобразует DTO изменения в patch сервиса
func DTOToIncidentPatch(dto UpdateIncidentRequest, keys []string) (service.IncidentPatch, error) {
	patch := service.IncidentPatch{
		Present:         keys,
		Title:           dto.Title,
		Description:     dto.Description,
		Status:          dto.Status,
		Priority:        dto.Priority,
		ResolutionNotes: dto.ResolutionNotes,
		Address:         dto.Address,
		Latitude:        dto.Latitude,
		Longitude:       dto.Longitude,
		Radius:          dto.AffectedAreaRadius,
	}

	var err error
	if patch.CategoryID, err = optionalUUID(dto.CategoryID, "category_id"); err != nil {
		return patch, err
	}
	if patch.AssignedTo, err = optionalUUID(dto.AssignedTo, "assigned_to"); err != nil {
		return patch, err
	}
	return patch, nil
}

// optionalUUID: nil - поле не передано, "" - сброс (uuid.Nil)
func optionalUUID(raw *string, field string) (*uuid.UUID, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		id := uuid.Nil
		return &id, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, apperr.Validation("invalid %s", field).WithFields(field)
	}
	return &id, nil
}

// DTOToProfileUpdate преобразует DTO профиля
func DTOToProfileUpdate(dto ProfileRequest) service.ProfileUpdate {
	return service.ProfileUpdate{
		PhoneNumber:        dto.PhoneNumber,
		EmailNotifications: dto.EmailNotifications,
		SMSNotifications:   dto.SMSNotifications,
		Preferences:        dto.Preferences,
	}
}

// DTOToCategoryInput преобразует DTO категории
func DTOToCategoryInput(dto CategoryRequest) service.CategoryInput {
	return service.CategoryInput{
		Name:        dto.Name,
		Description: dto.Description,
		Icon:        dto.Icon,
		Color:       dto.Color,
	}
}

// ModelToAuthResponse собирает ответ с токеном
func ModelToAuthResponse(result *service.AuthResult) *AuthResponse {
	return &AuthResponse{
		AccessToken: result.Token,
		TokenType:   "Bearer",
		ExpiresAt:   result.ExpiresAt,
		User:        result.User,
	}
}
