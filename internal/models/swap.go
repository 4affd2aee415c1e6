package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// SwapStatus представляет статус предложения обмена
type SwapStatus string

const (
	SwapPending   SwapStatus = "PENDING"
	SwapAccepted  SwapStatus = "ACCEPTED"
	SwapRejected  SwapStatus = "REJECTED"
	SwapCompleted SwapStatus = "COMPLETED"
	SwapCancelled SwapStatus = "CANCELLED"
)

// SwapStatuses перечисляет все допустимые статусы
var SwapStatuses = []SwapStatus{SwapPending, SwapAccepted, SwapRejected, SwapCompleted, SwapCancelled}

// HistoryStatuses перечисляет статусы, попадающие в историю обменов
var HistoryStatuses = []SwapStatus{SwapAccepted, SwapRejected, SwapCompleted, SwapCancelled}

// SwapAction представляет действие над предложением обмена
type SwapAction string

const (
	ActionAccept    SwapAction = "accept"
	ActionReject    SwapAction = "reject"
	ActionComplete  SwapAction = "complete"
	ActionWithdraw  SwapAction = "withdraw"
	ActionSupersede SwapAction = "supersede"
)

// Role определяет участника, которому разрешено действие
type Role string

const (
	RoleOwner     Role = "owner"
	RoleRequester Role = "requester"
	RoleSystem    Role = "system"
)

type transition struct {
	to   SwapStatus
	role Role
}

// transitions описывает граф переходов, других мест с ним нет.
// Отсутствие записи означает, что переход запрещён.
var transitions = map[SwapStatus]map[SwapAction]transition{
	SwapPending: {
		ActionAccept:    {to: SwapAccepted, role: RoleOwner},
		ActionReject:    {to: SwapRejected, role: RoleOwner},
		ActionWithdraw:  {to: SwapCancelled, role: RoleRequester},
		ActionSupersede: {to: SwapCancelled, role: RoleSystem},
	},
	SwapAccepted: {
		ActionComplete: {to: SwapCompleted, role: RoleOwner},
	},
}

// ParseSwapStatus разбирает статус из строки хранилища
func ParseSwapStatus(s string) (SwapStatus, bool) {
	for _, st := range SwapStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Next возвращает статус, в который переводит действие, если переход разрешён
func (s SwapStatus) Next(action SwapAction) (SwapStatus, bool) {
	t, ok := transitions[s][action]
	if !ok {
		return "", false
	}
	return t.to, true
}

// IsTerminal сообщает, что из статуса нет ни одного перехода
func (s SwapStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ActionRole возвращает роль, которая может выполнить действие
func ActionRole(action SwapAction) Role {
	for _, byAction := range transitions {
		if t, ok := byAction[action]; ok {
			return t.role
		}
	}
	return ""
}

// SwapRequest представляет предложение обмена одного предмета на другой
type SwapRequest struct {
	ID              uuid.UUID  `json:"id"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	RequestedItemID uuid.UUID  `json:"requested_item_id"`
	OfferedItemID   uuid.UUID  `json:"offered_item_id"`
	Message         string     `json:"message"`
	Status          SwapStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RoleOf возвращает роль пользователя в обмене
func (s SwapRequest) RoleOf(userID uuid.UUID) (Role, bool) {
	switch userID {
	case s.OwnerID:
		return RoleOwner, true
	case s.RequesterID:
		return RoleRequester, true
	}
	return "", false
}

// ItemIDs возвращает оба предмета обмена в порядке возрастания ID
func (s SwapRequest) ItemIDs() [2]uuid.UUID {
	a, b := s.RequestedItemID, s.OfferedItemID
	if bytes.Compare(b[:], a[:]) < 0 {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}
