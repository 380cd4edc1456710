package models

import (
	"strings"
	"time"

	"github.com/shenikar/incident_reporting_system/internal/apperr"
)

// Status - статус инцидента
type Status string

const (
	StatusReported           Status = "reported"
	StatusUnderInvestigation Status = "under_investigation"
	StatusResolved           Status = "resolved"
	StatusRejected           Status = "rejected"
)

var statuses = []Status{StatusReported, StatusUnderInvestigation, StatusResolved, StatusRejected}

// Допустимые переходы. Resolved и rejected - терминальные.
var transitions = map[Status][]Status{
	StatusReported:           {StatusUnderInvestigation, StatusResolved, StatusRejected},
	StatusUnderInvestigation: {StatusResolved, StatusRejected},
	StatusResolved:           nil,
	StatusRejected:           nil,
}

// Statuses возвращает все допустимые статусы
func Statuses() []Status {
	return append([]Status(nil), statuses...)
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo сообщает, разрешен ли переход s -> target
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ParseStatus разбирает значение статуса; "under investigation" принимается как синоним
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ReplaceAll(strings.TrimSpace(strings.ToLower(raw)), " ", "_"))
	if !s.Valid() {
		return "", apperr.Validation("invalid status %q, must be one of: %s", raw, joinStatuses(statuses)).WithFields("status")
	}
	return s, nil
}

// ParsePriority разбирает значение приоритета
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.TrimSpace(strings.ToLower(raw)))
	if !p.Valid() {
		names := make([]string, len(priorities))
		for i, v := range priorities {
			names[i] = string(v)
		}
		return "", apperr.Validation("invalid priority %q, must be one of: %s", raw, strings.Join(names, ", ")).WithFields("priority")
	}
	return p, nil
}

// TransitionTo переводит инцидент в статус target. При входе в resolved
// фиксируется resolved_at; при других переходах resolved_at не трогается.
func (i *Incident) TransitionTo(target Status, now time.Time) error {
	if !target.Valid() {
		return apperr.Validation("invalid status %q, must be one of: %s", target, joinStatuses(statuses)).WithFields("status")
	}
	if !i.Status.CanTransitionTo(target) {
		if i.Status.IsTerminal() {
			return apperr.Validation("incident is in terminal status %q and cannot move to %q", i.Status, target).WithFields("status")
		}
		allowed := transitions[i.Status]
		return apperr.Validation("cannot move incident from %q to %q, allowed: %s", i.Status, target, joinStatuses(allowed)).WithFields("status")
	}

	i.Status = target
	if target == StatusResolved {
		resolvedAt := now
		i.ResolvedAt = &resolvedAt
	}
	i.UpdatedAt = now
	return nil
}

func joinStatuses(list []Status) string {
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
