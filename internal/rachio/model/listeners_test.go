package model

import (
	"sync"
	"testing"
	"time"
)

func TestListener_PanicIsolation(t *testing.T) {
	s := NewStore(300)
	s.Subscribe(ListenerFuncs{
		Zone: func(Zone) { panic("boom") },
	})
	r := &recorder{}
	s.Subscribe(r)

	p, devices := testTree()
	s.ApplySnapshot(p, devices)

	if _, z := r.counts(); z != 2 {
		t.Errorf("healthy listener got %d zone notifications, want 2", z)
	}

	if _, err := s.ApplyZoneRunEvent("z1", RunStarted, time.Now()); err != nil {
		t.Fatalf("store unusable after listener panic: %v", err)
	}
	if z, _ := s.Zone("z1"); !z.Running {
		t.Error("mutation lost after listener panic")
	}
}

func TestListener_Unsubscribe(t *testing.T) {
	s := NewStore(300)
	r := &recorder{}
	unsubscribe := s.Subscribe(r)
	unsubscribe()
	unsubscribe()

	p, devices := testTree()
	s.ApplySnapshot(p, devices)

	if d, z := r.counts(); d != 0 || z != 0 {
		t.Errorf("unsubscribed listener notified %d/%d", d, z)
	}
}

func TestListener_ReceivesCopies(t *testing.T) {
	s := NewStore(300)
	s.Subscribe(ListenerFuncs{
		Device: func(d Device) {
			d.Name = "mutated"
			if len(d.Zones) > 0 {
				d.Zones[0].Name = "mutated"
			}
		},
	})

	p, devices := testTree()
	s.ApplySnapshot(p, devices)

	d, _ := s.Device("d1")
	if d.Name == "mutated" || d.Zones[0].Name == "mutated" {
		t.Error("listener mutation leaked into the store")
	}
}

func TestSetConnectivity_NotifiesOnChangeOnly(t *testing.T) {
	s := NewStore(300)
	r := &recorder{}
	s.Subscribe(r)

	for _, c := range []bool{false, false, true, true, false} {
		s.SetConnectivity(c)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	want := []bool{false, true, false}
	if len(r.connectivity) != len(want) {
		t.Fatalf("connectivity notifications = %v, want %v", r.connectivity, want)
	}
	for i := range want {
		if r.connectivity[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, r.connectivity[i], want[i])
		}
	}
}

func TestDeliveryFollowsMutationOrder(t *testing.T) {
	s := NewStore(300)
	p, devices := testTree()
	s.ApplySnapshot(p, devices)

	var mu sync.Mutex
	var seen []bool
	s.Subscribe(ListenerFuncs{Zone: func(z Zone) {
		mu.Lock()
		seen = append(seen, z.Running)
		mu.Unlock()
	}})

	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state := RunStarted
			if i%2 == 1 {
				state = RunStopped
			}
			_, _ = s.ApplyZoneRunEvent("z1", state, base.Add(time.Duration(i)*time.Second))
		}(i)
	}
	wg.Wait()

	mu.Lock()
	last := seen[len(seen)-1]
	mu.Unlock()
	if z, _ := s.Zone("z1"); z.Running != last {
		t.Errorf("last delivered Running = %v, model has %v", last, z.Running)
	}
}

func TestSlowListenerDoesNotBlockStore(t *testing.T) {
	s := NewStore(300)
	p, devices := testTree()
	s.ApplySnapshot(p, devices)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var order []string
	s.Subscribe(ListenerFuncs{Zone: func(z Zone) {
		once.Do(func() {
			close(entered)
			<-release
		})
		mu.Lock()
		order = append(order, z.ID)
		mu.Unlock()
	}})

	first := make(chan struct{})
	go func() {
		defer close(first)
		_ = s.ApplyZoneDelta("z1", ZoneDelta{Name: Ptr("Back lawn")})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.ApplyZoneDelta("z2", ZoneDelta{Name: Ptr("Tulips")})
		if !s.HasDevice("d1") {
			t.Error("HasDevice(d1) = false")
		}
		if z, _ := s.Zone("z2"); z.Name != "Tulips" {
			t.Errorf("z2 name = %q", z.Name)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("store blocked behind a listener callback")
	}

	close(release)
	<-first

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "z1" || order[1] != "z2" {
		t.Errorf("delivery order = %v, want [z1 z2]", order)
	}
}

func TestListenerMayMutateStore(t *testing.T) {
	s := NewStore(300)
	p, devices := testTree()
	s.ApplySnapshot(p, devices)

	var mu sync.Mutex
	var names []string
	s.Subscribe(ListenerFuncs{Zone: func(z Zone) {
		mu.Lock()
		names = append(names, z.Name)
		mu.Unlock()
		if z.Name == "Back lawn" {
			_ = s.ApplyZoneDelta("z1", ZoneDelta{Name: Ptr("Front lawn")})
		}
	}})

	if err := s.ApplyZoneDelta("z1", ZoneDelta{Name: Ptr("Back lawn")}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(names) != 2 || names[1] != "Front lawn" {
		t.Errorf("notifications = %v, want [Back lawn Front lawn]", names)
	}
}
