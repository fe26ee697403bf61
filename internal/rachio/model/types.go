package model

import "time"

// DeviceStatus is the provider's reachability status of a controller.
type DeviceStatus string

// Device statuses reported by the provider.
const (
	StatusOnline              DeviceStatus = "ONLINE"
	StatusOffline             DeviceStatus = "OFFLINE"
	StatusOfflineNotification DeviceStatus = "OFFLINE_NOTIFICATION"
)

// Zone run states carried by ZONE_STATUS events.
const (
	RunStarted       = "STARTED"
	RunStopped       = "STOPPED"
	RunCompleted     = "COMPLETED"
	RunZoneStopped   = "ZONE_STOPPED"
	RunZoneCompleted = "ZONE_COMPLETED"
)

// Person is the account owner.
type Person struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	FullName  string   `json:"full_name"`
	Email     string   `json:"email"`
	DeviceIDs []string `json:"device_ids"`
}

// NetworkInfo is a controller's network configuration. The provider only
// reports it in COLD_REBOOT events.
type NetworkInfo struct {
	IP      string `json:"ip,omitempty"`
	Netmask string `json:"netmask,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	DNS1    string `json:"dns1,omitempty"`
	DNS2    string `json:"dns2,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
}

// Device is an irrigation controller.
type Device struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	SerialNumber string       `json:"serial_number"`
	Model        string       `json:"model"`
	MACAddress   string       `json:"mac_address,omitempty"`
	Status       DeviceStatus `json:"status"`
	Enabled      bool         `json:"enabled"`
	Paused       bool         `json:"paused"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Network      NetworkInfo  `json:"network"`

	// DefaultRuntime is the run length in seconds for commands that name none.
	DefaultRuntime int `json:"default_runtime"`

	// RunZones selects the zones started by a "run selected" command, as a
	// comma separated list of zone numbers. Empty selects every enabled zone.
	RunZones string `json:"run_zones,omitempty"`

	RainDelayUntil time.Time `json:"rain_delay_until,omitzero"`
	ScheduleName   string    `json:"schedule_name,omitempty"`

	// Zones are ordered by zone number.
	Zones []Zone `json:"zones"`
}

// Online reports whether the provider sees the controller.
func (d Device) Online() bool {
	return d.Status == StatusOnline
}

// Zone is one irrigation zone of a device.
type Zone struct {
	ID           string  `json:"id"`
	DeviceID     string  `json:"device_id"`
	Number       int     `json:"number"`
	Name         string  `json:"name"`
	Enabled      bool    `json:"enabled"`
	ImageURL     string  `json:"image_url,omitempty"`
	Runtime      int     `json:"runtime"`
	MaxRuntime   int     `json:"max_runtime"`
	Efficiency   float64 `json:"efficiency"`
	DepthOfWater float64 `json:"depth_of_water"`

	// RequestedDuration is a local hint for the next start, in seconds.
	RequestedDuration int `json:"requested_duration"`

	// Running is driven by run events and optimistic command updates only.
	Running bool `json:"running"`
}

// DeviceDelta is a partial device update. Nil fields are left untouched.
type DeviceDelta struct {
	Name           *string
	Status         *DeviceStatus
	Enabled        *bool
	Paused         *bool
	Network        *NetworkInfo
	DefaultRuntime *int
	RunZones       *string
	RainDelayUntil *time.Time
	ScheduleName   *string
}

// ZoneDelta is a partial update of a zone's static fields. Nil fields are
// left untouched; Running is never changed by a delta.
type ZoneDelta struct {
	Name              *string
	Enabled           *bool
	ImageURL          *string
	Runtime           *int
	MaxRuntime        *int
	Efficiency        *float64
	DepthOfWater      *float64
	RequestedDuration *int
}

// SnapshotResult summarises one ApplySnapshot call.
type SnapshotResult struct {
	DevicesChanged int
	ZonesChanged   int
	DevicesRemoved int

	// Collisions counts zones dropped because their id was already placed
	// under an earlier device.
	Collisions int
}

// Ptr returns a pointer to v. Convenient for building deltas.
func Ptr[T any](v T) *T {
	return &v
}
