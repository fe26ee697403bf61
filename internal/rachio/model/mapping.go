package model

import (
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
)

// FromPerson maps a /person/info response onto the model. Deleted devices
// are skipped.
func FromPerson(dto *cloud.PersonDTO) (Person, []Device) {
	p := Person{
		ID:       dto.ID,
		Username: dto.Username,
		FullName: dto.FullName,
		Email:    dto.Email,
	}

	devices := make([]Device, 0, len(dto.Devices))
	for _, d := range dto.Devices {
		if d.Deleted {
			continue
		}
		p.DeviceIDs = append(p.DeviceIDs, d.ID)
		devices = append(devices, FromDevice(d))
	}
	return p, devices
}

// FromDevice maps a device response, zones included.
func FromDevice(dto cloud.DeviceDTO) Device {
	d := Device{
		ID:           dto.ID,
		Name:         dto.Name,
		SerialNumber: dto.SerialNumber,
		Model:        dto.Model,
		MACAddress:   dto.MACAddress,
		Status:       DeviceStatus(dto.Status),
		Enabled:      dto.On,
		Paused:       dto.Paused,
		Latitude:     dto.Latitude,
		Longitude:    dto.Longitude,
	}
	if dto.RainDelayExpirationDate > 0 {
		d.RainDelayUntil = time.UnixMilli(dto.RainDelayExpirationDate).UTC()
	}
	for _, rule := range dto.ScheduleRules {
		if rule.Enabled {
			d.ScheduleName = rule.Name
			break
		}
	}

	d.Zones = make([]Zone, 0, len(dto.Zones))
	for _, z := range dto.Zones {
		d.Zones = append(d.Zones, FromZone(dto.ID, z))
	}
	sort.SliceStable(d.Zones, func(i, j int) bool {
		return d.Zones[i].Number < d.Zones[j].Number
	})
	return d
}

// FromZone maps one zone of the given device.
func FromZone(deviceID string, dto cloud.ZoneDTO) Zone {
	return Zone{
		ID:           dto.ID,
		DeviceID:     deviceID,
		Number:       dto.ZoneNumber,
		Name:         dto.Name,
		Enabled:      dto.Enabled,
		ImageURL:     dto.ImageURL,
		Runtime:      dto.Runtime,
		MaxRuntime:   dto.MaxRuntime,
		Efficiency:   dto.Efficiency,
		DepthOfWater: dto.DepthOfWater,
	}
}
