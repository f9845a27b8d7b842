package calendar

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/model"
)

// Роль того, кто выполняет операцию.
type ActorRole string

const (
	ActorRoleClient   ActorRole = "client"
	ActorRoleProvider ActorRole = "provider"
	ActorRoleAdmin    ActorRole = "admin"
)

// Actor: кто инициировал операцию. Аутентификация вне ядра:
// значения приходят от шлюза уже проверенными.
type Actor struct {
	ID   uuid.UUID
	Role ActorRole
}

func (a Actor) IsAdmin() bool { return a.Role == ActorRoleAdmin }

// ValidateActor:
//   - проверяет роль;
//   - разбирает идентификатор (для admin он может быть пустым);
//   - возвращает нормализованного актора или ValidationError.
func ValidateActor(rawID, rawRole string) (Actor, error) {
	role := ActorRole(strings.ToLower(strings.TrimSpace(rawRole)))
	switch role {
	case ActorRoleClient, ActorRoleProvider, ActorRoleAdmin:
	case "":
		return Actor{}, apperr.Validation(apperr.ReasonInvalidInput, "actor role is required")
	default:
		return Actor{}, apperr.Validation(apperr.ReasonInvalidInput, "unknown actor role %q", rawRole)
	}

	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		if role == ActorRoleAdmin {
			return Actor{Role: role}, nil
		}
		return Actor{}, apperr.Validation(apperr.ReasonInvalidInput, "actor id is required for role %s", role)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return Actor{}, apperr.Validation(apperr.ReasonInvalidInput, "invalid actor id %q", rawID)
	}
	return Actor{ID: id, Role: role}, nil
}

// AuthorizeCancel: клиент отменяет только свои записи, мастер — записи к себе,
// администратор — любые.
func AuthorizeCancel(actor Actor, b *model.Booking) error {
	switch actor.Role {
	case ActorRoleAdmin:
		return nil
	case ActorRoleClient:
		if actor.ID != uuid.Nil && actor.ID == b.ClientID {
			return nil
		}
	case ActorRoleProvider:
		if actor.ID != uuid.Nil && actor.ID == b.ProviderID {
			return nil
		}
	}
	return apperr.Forbidden("actor %s (%s) may not cancel booking %s", actor.ID, actor.Role, b.ID)
}

// AuthorizeClient: данные клиента видит сам клиент или администратор.
func AuthorizeClient(actor Actor, clientID uuid.UUID) error {
	if actor.IsAdmin() || (actor.Role == ActorRoleClient && actor.ID != uuid.Nil && actor.ID == clientID) {
		return nil
	}
	return apperr.Forbidden("actor %s (%s) may not access client %s", actor.ID, actor.Role, clientID)
}

// RequireAdmin: для административных операций (удаление, завершение, блокировки).
func RequireAdmin(actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	return apperr.Forbidden("operation requires admin role")
}
