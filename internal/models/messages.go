package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	TypeTaskCreated = "task_created"
	TypeTaskUpdated = "task_updated"
	TypeTaskDeleted = "task_deleted"
	TypeError       = "error"
	TypeRefreshJWT  = "refresh_jwt"
)

// ChangeEvent describes one task mutation. The variants are TaskCreated,
// TaskUpdated and TaskDeleted.
type ChangeEvent interface {
	changeEvent()
}

type TaskCreated struct {
	Task Task
}

type TaskUpdated struct {
	Task Task
}

type TaskDeleted struct {
	TaskID uuid.UUID
}

func (TaskCreated) changeEvent() {}
func (TaskUpdated) changeEvent() {}
func (TaskDeleted) changeEvent() {}

type eventMessage struct {
	Type   string     `json:"type"`
	Task   *Task      `json:"task,omitempty"`
	TaskID *uuid.UUID `json:"task_id,omitempty"`
}

func EventType(ev ChangeEvent) string {
	switch ev.(type) {
	case TaskCreated:
		return TypeTaskCreated
	case TaskUpdated:
		return TypeTaskUpdated
	case TaskDeleted:
		return TypeTaskDeleted
	default:
		panic(fmt.Sprintf("unknown change event %T", ev))
	}
}

func MarshalEvent(ev ChangeEvent) ([]byte, error) {
	var msg eventMessage
	switch ev := ev.(type) {
	case TaskCreated:
		msg = eventMessage{Type: TypeTaskCreated, Task: &ev.Task}
	case TaskUpdated:
		msg = eventMessage{Type: TypeTaskUpdated, Task: &ev.Task}
	case TaskDeleted:
		msg = eventMessage{Type: TypeTaskDeleted, TaskID: &ev.TaskID}
	default:
		return nil, fmt.Errorf("unknown change event %T", ev)
	}
	return json.Marshal(msg)
}

func UnmarshalEvent(data []byte) (ChangeEvent, error) {
	var msg eventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}

	switch msg.Type {
	case TypeTaskCreated, TypeTaskUpdated:
		if msg.Task == nil {
			return nil, fmt.Errorf("%s event without task", msg.Type)
		}
		if msg.Type == TypeTaskCreated {
			return TaskCreated{Task: *msg.Task}, nil
		}
		return TaskUpdated{Task: *msg.Task}, nil
	case TypeTaskDeleted:
		if msg.TaskID == nil {
			return nil, errors.New("task_deleted event without task_id")
		}
		return TaskDeleted{TaskID: *msg.TaskID}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
}

// ClientMessage is a control frame sent by a live connection. RefreshJWT is
// the only variant.
type ClientMessage interface {
	clientMessage()
}

type RefreshJWT struct {
	JWT string
}

func (RefreshJWT) clientMessage() {}

func UnmarshalClientMessage(data []byte) (ClientMessage, error) {
	var msg struct {
		Type string  `json:"type"`
		JWT  *string `json:"jwt"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}

	switch msg.Type {
	case TypeRefreshJWT:
		if msg.JWT == nil {
			return nil, errors.New("missing field `jwt`")
		}
		return RefreshJWT{JWT: *msg.JWT}, nil
	default:
		return nil, fmt.Errorf("unknown variant %q", msg.Type)
	}
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func MarshalError(message string) []byte {
	data, err := json.Marshal(ErrorMessage{Type: TypeError, Message: message})
	if err != nil {
		panic(err)
	}
	return data
}
