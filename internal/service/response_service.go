package service

import "time"

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "START", "STOP", "MODE_CHANGE", "ERROR", "COMMAND", "CONNECT"
}

// SettingsPatch carries the user-editable settings; nil fields are left
// unchanged.
type SettingsPatch struct {
	PollingInterval  *float64 `json:"polling_interval,omitempty"` // seconds
	OffOnDisconnect  *bool    `json:"off_on_disconnect,omitempty"`
	OffOnExit        *bool    `json:"off_on_exit,omitempty"`
	DevicePort       *string  `json:"device_port,omitempty"`
	BaudRate         *int     `json:"baud_rate,omitempty"`
	RetentionSeconds *float64 `json:"retention_seconds,omitempty"`
	Debug            *bool    `json:"debug,omitempty"`
}
