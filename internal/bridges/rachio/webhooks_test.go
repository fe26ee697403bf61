package rachio

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
)

// fakeWebhookAPI keeps webhooks per device in memory.
type fakeWebhookAPI struct {
	mu          sync.Mutex
	hooks       map[string][]cloud.Webhook
	deleted     []string
	registered  []string
	eventTypes  []string
	catalogErr  error
	registerErr map[string]error
}

func (f *fakeWebhookAPI) WebhookEventTypes(context.Context) ([]cloud.WebhookEventType, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return []cloud.WebhookEventType{{ID: "5"}, {ID: "10"}, {ID: "14"}}, nil
}

func (f *fakeWebhookAPI) ListWebhooks(_ context.Context, deviceID string) ([]cloud.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cloud.Webhook(nil), f.hooks[deviceID]...), nil
}

func (f *fakeWebhookAPI) RegisterWebhook(_ context.Context, deviceID, externalID, url string, types []string) (*cloud.Webhook, error) {
	if err := f.registerErr[deviceID]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, deviceID)
	f.eventTypes = types
	return &cloud.Webhook{ID: "new-" + deviceID, URL: url, ExternalID: externalID}, nil
}

func (f *fakeWebhookAPI) DeleteWebhook(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func existingHooks() map[string][]cloud.Webhook {
	return map[string][]cloud.Webhook{
		"d1": {
			{ID: "ours-by-url", URL: "https://me/hook"},
			{ID: "ours-by-ext", URL: "https://old/hook", ExternalID: "ext"},
			{ID: "foreign", URL: "https://other/hook", ExternalID: "other"},
		},
	}
}

func TestWebhookRegistrar_DeletesOnlyOurs(t *testing.T) {
	api := &fakeWebhookAPI{hooks: existingHooks()}
	w := newWebhookRegistrar(api, "acct1", "ext", "https://me/hook", false, nil)

	if err := w.register(context.Background(), []string{"d1"}); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	sort.Strings(api.deleted)
	want := []string{"ours-by-ext", "ours-by-url"}
	if len(api.deleted) != 2 || api.deleted[0] != want[0] || api.deleted[1] != want[1] {
		t.Errorf("deleted = %v, want %v", api.deleted, want)
	}
	if len(api.eventTypes) != 3 {
		t.Errorf("event types = %v, want the full catalogue", api.eventTypes)
	}
	if w.count() != 1 {
		t.Errorf("count = %d, want 1", w.count())
	}
}

func TestWebhookRegistrar_ClearAll(t *testing.T) {
	api := &fakeWebhookAPI{hooks: existingHooks()}
	w := newWebhookRegistrar(api, "acct1", "ext", "https://me/hook", true, nil)

	if err := w.register(context.Background(), []string{"d1"}); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	if len(api.deleted) != 3 {
		t.Errorf("deleted = %v, want all three", api.deleted)
	}
}

func TestWebhookRegistrar_PartialFailure(t *testing.T) {
	boom := errors.New("boom")
	api := &fakeWebhookAPI{registerErr: map[string]error{"d1": boom}}
	w := newWebhookRegistrar(api, "acct1", "ext", "https://me/hook", false, nil)

	err := w.register(context.Background(), []string{"d1", "d2"})
	if !errors.Is(err, boom) {
		t.Fatalf("register() error = %v, want boom", err)
	}
	if len(api.registered) != 1 || api.registered[0] != "d2" {
		t.Errorf("registered = %v, want d2 despite d1 failing", api.registered)
	}

	w.unregister(context.Background())
	if len(api.deleted) != 1 || api.deleted[0] != "new-d2" {
		t.Errorf("deleted on unregister = %v, want [new-d2]", api.deleted)
	}
	if w.count() != 0 {
		t.Errorf("count after unregister = %d", w.count())
	}
}

func TestWebhookRegistrar_DisabledWithoutCallback(t *testing.T) {
	api := &fakeWebhookAPI{catalogErr: errors.New("must not be called")}
	w := newWebhookRegistrar(api, "acct1", "ext", "", false, nil)

	if w.enabled() {
		t.Error("enabled() = true without callback URL")
	}
	if err := w.register(context.Background(), []string{"d1"}); err != nil {
		t.Errorf("register() error = %v", err)
	}
}
