package model

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
)

func TestFromPerson(t *testing.T) {
	dto := &cloud.PersonDTO{
		ID:       "p1",
		Username: "gardener",
		Devices: []cloud.DeviceDTO{
			{
				ID:                      "d1",
				Name:                    "Front",
				Status:                  "ONLINE",
				On:                      true,
				MACAddress:              "AA:BB",
				RainDelayExpirationDate: 1772409600000,
				ScheduleRules: []cloud.ScheduleRuleDTO{
					{Name: "Off season", Enabled: false},
					{Name: "Summer", Enabled: true},
				},
				Zones: []cloud.ZoneDTO{
					{ID: "z3", ZoneNumber: 3, Name: "Beds", Efficiency: 0.8},
					{ID: "z1", ZoneNumber: 1, Name: "Lawn", MaxRuntime: 10800},
				},
			},
			{ID: "gone", Deleted: true},
		},
	}

	p, devices := FromPerson(dto)

	if len(p.DeviceIDs) != 1 || p.DeviceIDs[0] != "d1" {
		t.Errorf("DeviceIDs = %v", p.DeviceIDs)
	}
	if len(devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(devices))
	}
	d := devices[0]
	if !d.Enabled || d.Status != StatusOnline || d.MACAddress != "AA:BB" {
		t.Errorf("device = %+v", d)
	}
	if d.ScheduleName != "Summer" {
		t.Errorf("ScheduleName = %q", d.ScheduleName)
	}
	if want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC); !d.RainDelayUntil.Equal(want) {
		t.Errorf("RainDelayUntil = %v, want %v", d.RainDelayUntil, want)
	}
	if d.Zones[0].ID != "z1" || d.Zones[1].ID != "z3" {
		t.Errorf("zones not sorted: %+v", d.Zones)
	}
	if d.Zones[1].DeviceID != "d1" || d.Zones[1].Efficiency != 0.8 || d.Zones[0].MaxRuntime != 10800 {
		t.Errorf("zone fields not mapped: %+v", d.Zones)
	}
}
