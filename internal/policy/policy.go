// Package policy решает, кто может читать и изменять инциденты, категории и пользователей.
// Роли сопоставляются с возможностями через таблицу casbin; владение инцидентом
// и список разрешенных полей проверяются поверх нее.
package policy

import (
	"fmt"
	"sort"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

// Ресурсы и действия таблицы возможностей
const (
	ObjIncident = "incident"
	ObjCategory = "category"
	ObjUser     = "user"
	ObjActivity = "activity"
	ObjStats    = "stats"

	ActReadAny    = "read_any"
	ActReadOwn    = "read_own"
	ActWriteAny   = "write_any"
	ActWriteOwn   = "write_own"
	ActTransition = "transition"
	ActManage     = "manage"
	ActRead       = "read"
)

// Поля инцидента, которые может передать запрос на изменение
const (
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldStatus          = "status"
	FieldPriority        = "priority"
	FieldCategory        = "category_id"
	FieldAssignedTo      = "assigned_to"
	FieldResolutionNotes = "resolution_notes"
	FieldAddress         = "address"
	FieldLatitude        = "latitude"
	FieldLongitude       = "longitude"
	FieldRadius          = "affected_area_radius"
	FieldMedia           = "media"
)

// Поля, которые владелец (не администратор) может менять
var ownerWritableFields = map[string]struct{}{
	FieldTitle:       {},
	FieldDescription: {},
}

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

var defaultRules = [][]string{
	{string(models.RoleAdmin), ObjIncident, ActReadAny},
	{string(models.RoleAdmin), ObjIncident, ActReadOwn},
	{string(models.RoleAdmin), ObjIncident, ActWriteAny},
	{string(models.RoleAdmin), ObjIncident, ActWriteOwn},
	{string(models.RoleAdmin), ObjIncident, ActTransition},
	{string(models.RoleAdmin), ObjCategory, ActManage},
	{string(models.RoleAdmin), ObjCategory, ActRead},
	{string(models.RoleAdmin), ObjUser, ActManage},
	{string(models.RoleAdmin), ObjActivity, ActReadAny},
	{string(models.RoleAdmin), ObjStats, ActRead},
	{string(models.RoleUser), ObjIncident, ActReadOwn},
	{string(models.RoleUser), ObjIncident, ActWriteOwn},
	{string(models.RoleUser), ObjCategory, ActRead},
}

// Decision - результат проверки права записи
type Decision struct {
	Allowed      bool
	DeniedFields []string
}

type Policy struct {
	enforcer *casbin.Enforcer
}

// New создает политику с таблицей возможностей по умолчанию
func New() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("policy: failed to parse model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("policy: failed to create enforcer: %w", err)
	}
	for _, rule := range defaultRules {
		if _, err := e.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return nil, fmt.Errorf("policy: failed to add rule %v: %w", rule, err)
		}
	}
	return &Policy{enforcer: e}, nil
}

// MustNew - как New, но паникует при ошибке. Удобно для тестов и main.
func MustNew() *Policy {
	p, err := New()
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) allowed(actor *models.User, obj, act string) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	ok, err := p.enforcer.Enforce(string(actor.Role), obj, act)
	return err == nil && ok
}

func isOwner(actor *models.User, incident *models.Incident) bool {
	return actor != nil && incident != nil && actor.ID == incident.ReporterID
}

// CanRead: администратор читает все, остальные - только свои инциденты
func (p *Policy) CanRead(actor *models.User, incident *models.Incident) bool {
	if incident == nil {
		return false
	}
	if p.allowed(actor, ObjIncident, ActReadAny) {
		return true
	}
	return isOwner(actor, incident) && p.allowed(actor, ObjIncident, ActReadOwn)
}

// CanWrite проверяет запись набора полей. Для владельца любое поле вне
// {title, description} делает запрос целиком недопустимым.
func (p *Policy) CanWrite(actor *models.User, incident *models.Incident, requestedFields []string) Decision {
	if incident == nil {
		return Decision{Allowed: false, DeniedFields: sortedCopy(requestedFields)}
	}
	if p.allowed(actor, ObjIncident, ActWriteAny) {
		return Decision{Allowed: true}
	}
	if !isOwner(actor, incident) || !p.allowed(actor, ObjIncident, ActWriteOwn) {
		return Decision{Allowed: false, DeniedFields: sortedCopy(requestedFields)}
	}

	var denied []string
	for _, f := range requestedFields {
		if _, ok := ownerWritableFields[f]; !ok {
			denied = append(denied, f)
		}
	}
	if len(denied) > 0 {
		sort.Strings(denied)
		return Decision{Allowed: false, DeniedFields: denied}
	}
	return Decision{Allowed: true}
}

// CheckRead возвращает PermissionError, если чтение запрещено
func (p *Policy) CheckRead(actor *models.User, incident *models.Incident) error {
	if !p.CanRead(actor, incident) {
		return apperr.Permission("you do not have access to this incident")
	}
	return nil
}

// CheckWrite возвращает PermissionError с перечнем запрещенных полей
func (p *Policy) CheckWrite(actor *models.User, incident *models.Incident, requestedFields []string) error {
	d := p.CanWrite(actor, incident, requestedFields)
	if d.Allowed {
		return nil
	}
	if isOwner(actor, incident) && len(d.DeniedFields) > 0 {
		return apperr.Permission("fields not allowed for reporter: %v", d.DeniedFields).WithFields(d.DeniedFields...)
	}
	return apperr.Permission("you cannot modify this incident")
}

// CheckDelete: удалить может владелец или администратор
func (p *Policy) CheckDelete(actor *models.User, incident *models.Incident) error {
	if p.allowed(actor, ObjIncident, ActWriteAny) {
		return nil
	}
	if isOwner(actor, incident) && p.allowed(actor, ObjIncident, ActWriteOwn) {
		return nil
	}
	return apperr.Permission("you cannot delete this incident")
}

// CheckTransition: смена статуса доступна только администратору
func (p *Policy) CheckTransition(actor *models.User) error {
	if !p.allowed(actor, ObjIncident, ActTransition) {
		return apperr.Permission("admin privileges required to change incident status")
	}
	return nil
}

// ScopeFilter ограничивает выборку не-администратора его собственными инцидентами
func (p *Policy) ScopeFilter(actor *models.User, filter *models.IncidentFilter) error {
	if p.allowed(actor, ObjIncident, ActReadAny) {
		return nil
	}
	if !p.allowed(actor, ObjIncident, ActReadOwn) {
		return apperr.Permission("you do not have access to incidents")
	}
	id := actor.ID
	filter.ReporterID = &id
	return nil
}

func (p *Policy) CheckCategoryRead(actor *models.User) error {
	if !p.allowed(actor, ObjCategory, ActRead) {
		return apperr.Permission("you do not have access to categories")
	}
	return nil
}

func (p *Policy) CheckCategoryManage(actor *models.User) error {
	if !p.allowed(actor, ObjCategory, ActManage) {
		return apperr.Permission("admin privileges required to manage categories")
	}
	return nil
}

func (p *Policy) CheckUserManage(actor *models.User) error {
	if !p.allowed(actor, ObjUser, ActManage) {
		return apperr.Permission("admin privileges required to manage users")
	}
	return nil
}

func (p *Policy) CheckActivityRead(actor *models.User, userID uuid.UUID) error {
	if actor != nil && actor.IsActive && actor.ID == userID {
		return nil
	}
	if !p.allowed(actor, ObjActivity, ActReadAny) {
		return apperr.Permission("you cannot view other users' activity")
	}
	return nil
}

func (p *Policy) CheckStats(actor *models.User) error {
	if !p.allowed(actor, ObjStats, ActRead) {
		return apperr.Permission("admin privileges required")
	}
	return nil
}

// UserChange - изменение учетной записи администратором
type UserChange struct {
	Role     *models.Role
	IsActive *bool
	Delete   bool
}

// CheckUserMutation проверяет права администратора и запрет на понижение,
// деактивацию и удаление собственной учетной записи
func (p *Policy) CheckUserMutation(actor *models.User, targetID uuid.UUID, change UserChange) error {
	if err := p.CheckUserManage(actor); err != nil {
		return err
	}
	if actor.ID != targetID {
		return nil
	}
	if change.Role != nil && *change.Role != models.RoleAdmin {
		return apperr.Permission("you cannot remove your own admin role")
	}
	if change.IsActive != nil && !*change.IsActive {
		return apperr.Permission("you cannot deactivate your own account")
	}
	if change.Delete {
		return apperr.Permission("you cannot delete your own account")
	}
	return nil
}

func sortedCopy(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	out := append([]string(nil), fields...)
	sort.Strings(out)
	return out
}
