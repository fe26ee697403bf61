package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetPerson fetches the account owner together with its device tree.
func (c *Client) GetPerson(ctx context.Context) (*PersonDTO, error) {
	var p PersonDTO
	if err := c.Call(ctx, http.MethodGet, "/person/info", nil, &p); err != nil {
		return nil, fmt.Errorf("getting person: %w", err)
	}
	return &p, nil
}

// GetDevice fetches one controller with its zones.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*DeviceDTO, error) {
	var d DeviceDTO
	if err := c.Call(ctx, http.MethodGet, "/device/"+url.PathEscape(deviceID), nil, &d); err != nil {
		return nil, fmt.Errorf("getting device %s: %w", deviceID, err)
	}
	return &d, nil
}

// StartZone waters one zone for the given number of seconds.
func (c *Client) StartZone(ctx context.Context, zoneID string, seconds int) error {
	if err := c.Call(ctx, http.MethodPut, "/zone/start", durationRequest{ID: zoneID, Duration: seconds}, nil); err != nil {
		return fmt.Errorf("starting zone %s: %w", zoneID, err)
	}
	return nil
}

// StartMultipleZones runs several zones in sequence.
func (c *Client) StartMultipleZones(ctx context.Context, runs []ZoneRun) error {
	if err := c.Call(ctx, http.MethodPut, "/zone/start_multiple", multiZoneRequest{Zones: runs}, nil); err != nil {
		return fmt.Errorf("starting %d zones: %w", len(runs), err)
	}
	return nil
}

// StopWatering stops all watering on a device.
func (c *Client) StopWatering(ctx context.Context, deviceID string) error {
	if err := c.Call(ctx, http.MethodPut, "/device/stop_water", idRequest{ID: deviceID}, nil); err != nil {
		return fmt.Errorf("stopping device %s: %w", deviceID, err)
	}
	return nil
}

// SetRainDelay suspends schedules on a device for the given seconds. Zero clears it.
func (c *Client) SetRainDelay(ctx context.Context, deviceID string, seconds int) error {
	if err := c.Call(ctx, http.MethodPut, "/device/rain_delay", durationRequest{ID: deviceID, Duration: seconds}, nil); err != nil {
		return fmt.Errorf("setting rain delay on %s: %w", deviceID, err)
	}
	return nil
}

// EnableDevice turns a controller's schedules on.
func (c *Client) EnableDevice(ctx context.Context, deviceID string) error {
	if err := c.Call(ctx, http.MethodPut, "/device/on", idRequest{ID: deviceID}, nil); err != nil {
		return fmt.Errorf("enabling device %s: %w", deviceID, err)
	}
	return nil
}

// DisableDevice turns a controller's schedules off.
func (c *Client) DisableDevice(ctx context.Context, deviceID string) error {
	if err := c.Call(ctx, http.MethodPut, "/device/off", idRequest{ID: deviceID}, nil); err != nil {
		return fmt.Errorf("disabling device %s: %w", deviceID, err)
	}
	return nil
}

// WebhookEventTypes fetches the catalogue of subscribable event types.
func (c *Client) WebhookEventTypes(ctx context.Context) ([]WebhookEventType, error) {
	var types []WebhookEventType
	if err := c.Call(ctx, http.MethodGet, "/notification/webhook_event_type", nil, &types); err != nil {
		return nil, fmt.Errorf("listing webhook event types: %w", err)
	}
	return types, nil
}

// ListWebhooks returns the webhooks registered for a device.
func (c *Client) ListWebhooks(ctx context.Context, deviceID string) ([]Webhook, error) {
	var hooks []Webhook
	if err := c.Call(ctx, http.MethodGet, "/notification/"+url.PathEscape(deviceID)+"/webhook", nil, &hooks); err != nil {
		return nil, fmt.Errorf("listing webhooks of %s: %w", deviceID, err)
	}
	return hooks, nil
}

// RegisterWebhook subscribes callbackURL to the given event types of a device.
func (c *Client) RegisterWebhook(ctx context.Context, deviceID, externalID, callbackURL string, eventTypes []string) (*Webhook, error) {
	req := webhookRequest{
		Device:     idRequest{ID: deviceID},
		ExternalID: externalID,
		URL:        callbackURL,
		EventTypes: make([]EventTypeRef, 0, len(eventTypes)),
	}
	for _, id := range eventTypes {
		req.EventTypes = append(req.EventTypes, EventTypeRef{ID: id})
	}

	var hook Webhook
	if err := c.Call(ctx, http.MethodPost, "/notification/webhook", req, &hook); err != nil {
		return nil, fmt.Errorf("registering webhook for %s: %w", deviceID, err)
	}
	return &hook, nil
}

// DeleteWebhook removes a registered webhook.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	if err := c.Call(ctx, http.MethodDelete, "/notification/webhook/"+url.PathEscape(webhookID), nil, nil); err != nil {
		return fmt.Errorf("deleting webhook %s: %w", webhookID, err)
	}
	return nil
}
