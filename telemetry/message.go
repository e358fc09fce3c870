package telemetry

import (
	jsoniter "github.com/json-iterator/go"

	"planararm/control"
	"planararm/sensing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type MessageType string

const (
	TickMessage   MessageType = "tick"
	StatusMessage MessageType = "status"
)

type Message struct {
	Type   MessageType   `json:"type"`
	Tick   *control.Tick `json:"tick,omitempty"`
	Status *Status       `json:"status,omitempty"`
}

type Status struct {
	Session string                  `json:"session"`
	Stats   control.Stats           `json:"stats"`
	Last    *control.Tick           `json:"last,omitempty"`
	Sensors *[2]sensing.JointStatus `json:"sensors,omitempty"`
	Clients int                     `json:"clients"`
	Dropped uint64                  `json:"dropped"`
}

func Unmarshal(raw []byte) (msg *Message, err error) {
	msg = &Message{}
	err = json.Unmarshal(raw, msg)
	return
}
