package rachio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
)

// WebhookAPI is the notification part of the provider API. Satisfied by
// *cloud.Client.
type WebhookAPI interface {
	WebhookEventTypes(ctx context.Context) ([]cloud.WebhookEventType, error)
	ListWebhooks(ctx context.Context, deviceID string) ([]cloud.Webhook, error)
	RegisterWebhook(ctx context.Context, deviceID, externalID, callbackURL string, eventTypes []string) (*cloud.Webhook, error)
	DeleteWebhook(ctx context.Context, webhookID string) error
}

// webhookRegistrar keeps one webhook per device pointed at our callback.
type webhookRegistrar struct {
	api         WebhookAPI
	account     string
	externalID  string
	callbackURL string
	clearAll    bool
	logger      Logger

	mu         sync.Mutex
	registered map[string]string // device id -> webhook id
}

func newWebhookRegistrar(api WebhookAPI, account, externalID, callbackURL string, clearAll bool, logger Logger) *webhookRegistrar {
	return &webhookRegistrar{
		api:         api,
		account:     account,
		externalID:  externalID,
		callbackURL: callbackURL,
		clearAll:    clearAll,
		logger:      logger,
		registered:  make(map[string]string),
	}
}

// enabled reports whether a callback URL is configured.
func (w *webhookRegistrar) enabled() bool {
	return w.callbackURL != ""
}

// count returns the number of webhooks currently registered.
func (w *webhookRegistrar) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.registered)
}

// register replaces stale webhooks on each device with one of ours that
// subscribes to every event type in the catalogue. A failing device does
// not stop the others; the joined error reports all failures.
func (w *webhookRegistrar) register(ctx context.Context, deviceIDs []string) error {
	if !w.enabled() || len(deviceIDs) == 0 {
		return nil
	}

	catalogue, err := w.api.WebhookEventTypes(ctx)
	if err != nil {
		return fmt.Errorf("fetching webhook event types: %w", err)
	}
	types := make([]string, 0, len(catalogue))
	for _, t := range catalogue {
		types = append(types, t.ID)
	}

	var errs []error
	for _, deviceID := range deviceIDs {
		if err := w.registerDevice(ctx, deviceID, types); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *webhookRegistrar) registerDevice(ctx context.Context, deviceID string, types []string) error {
	existing, err := w.api.ListWebhooks(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("listing webhooks of device %s: %w", deviceID, err)
	}

	for _, hook := range existing {
		if !w.clearAll && hook.URL != w.callbackURL && hook.ExternalID != w.externalID {
			continue
		}
		if err := w.api.DeleteWebhook(ctx, hook.ID); err != nil {
			return fmt.Errorf("deleting webhook %s of device %s: %w", hook.ID, deviceID, err)
		}
		w.logDebug("deleted webhook", "device_id", deviceID, "webhook_id", hook.ID, "url", hook.URL)
	}

	hook, err := w.api.RegisterWebhook(ctx, deviceID, w.externalID, w.callbackURL, types)
	if err != nil {
		return fmt.Errorf("registering webhook for device %s: %w", deviceID, err)
	}

	w.mu.Lock()
	w.registered[deviceID] = hook.ID
	w.mu.Unlock()

	w.logInfo("webhook registered", "device_id", deviceID, "webhook_id", hook.ID, "event_types", len(types))
	return nil
}

// unregister deletes our webhooks best-effort.
func (w *webhookRegistrar) unregister(ctx context.Context) {
	w.mu.Lock()
	registered := w.registered
	w.registered = make(map[string]string)
	w.mu.Unlock()

	for deviceID, hookID := range registered {
		if err := w.api.DeleteWebhook(ctx, hookID); err != nil {
			w.logWarn("failed to delete webhook", "device_id", deviceID, "webhook_id", hookID, "error", err)
		}
	}
}

func (w *webhookRegistrar) logDebug(msg string, keysAndValues ...any) {
	if w.logger != nil {
		w.logger.Debug(msg, append([]any{"account", w.account}, keysAndValues...)...)
	}
}

func (w *webhookRegistrar) logInfo(msg string, keysAndValues ...any) {
	if w.logger != nil {
		w.logger.Info(msg, append([]any{"account", w.account}, keysAndValues...)...)
	}
}

func (w *webhookRegistrar) logWarn(msg string, keysAndValues ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, append([]any{"account", w.account}, keysAndValues...)...)
	}
}
