package models

// DeviceSettings are the load's own system settings: front panel, serial
// line and LAN interface. They live on the device, not in the config file.
type DeviceSettings struct {
	BaudRate     int  `json:"baud_rate"`
	Beep         bool `json:"beep"`
	KeyLock      bool `json:"key_lock"`
	Trigger      bool `json:"trigger"` // external trigger input
	Compensation bool `json:"compensation"`

	DHCP        bool   `json:"dhcp"`
	IPAddress   string `json:"ip_address"`
	SubnetMask  string `json:"subnet_mask"`
	Gateway     string `json:"gateway"`
	MACAddress  string `json:"mac_address"`
	NetworkPort int    `json:"network_port"`
}

// DefaultDeviceSettings is the factory state of the system settings.
var DefaultDeviceSettings = DeviceSettings{
	BaudRate:    115200,
	Beep:        true,
	IPAddress:   "192.168.1.198",
	SubnetMask:  "255.255.255.0",
	Gateway:     "192.168.1.1",
	MACAddress:  "00-2A-C0-00-00-01",
	NetworkPort: 18190,
}
