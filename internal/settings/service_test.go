package settings

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/omnibothq/omnibot/internal/store"
)

type fakeSettingStore struct {
	values map[string]map[string]string // scope -> key -> value
	calls  int
	err    error
}

func (f *fakeSettingStore) Get(ctx context.Context, tenantID *uuid.UUID, key string) (string, error) {
	all, err := f.All(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return all[key], nil
}

func (f *fakeSettingStore) All(ctx context.Context, tenantID *uuid.UUID) (map[string]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	scope := "global"
	if tenantID != nil {
		scope = tenantID.String()
	}
	out := make(map[string]string)
	for k, v := range f.values[scope] {
		out[k] = v
	}
	return out, nil
}

func newTestService(fs *fakeSettingStore) *Service {
	return NewService(fs, slog.New(slog.DiscardHandler))
}

func TestBufferDelayClamping(t *testing.T) {
	tenant := uuid.Must(uuid.NewV7())
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset uses default", "", 8 * time.Second},
		{"valid value", "5", 5 * time.Second},
		{"zero clamps to min", "0", 1 * time.Second},
		{"negative clamps to min", "-3", 1 * time.Second},
		{"huge clamps to max", "100", 30 * time.Second},
		{"garbage uses default", "abc", 8 * time.Second},
		{"boundary min", "1", 1 * time.Second},
		{"boundary max", "30", 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSettingStore{}
			if tt.value != "" {
				fs.values = map[string]map[string]string{
					tenant.String(): {store.SettingBufferSeconds: tt.value},
				}
			}
			svc := newTestService(fs)
			got := svc.BufferDelay(context.Background(), &tenant)
			if got != tt.want {
				t.Errorf("BufferDelay(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestBufferDelayStoreErrorFallsBack(t *testing.T) {
	fs := &fakeSettingStore{err: errors.New("db down")}
	svc := newTestService(fs)
	if got := svc.BufferDelay(context.Background(), nil); got != DefaultBufferDelay {
		t.Errorf("BufferDelay on store error = %v, want default %v", got, DefaultBufferDelay)
	}
}

func TestSnapshotCachesWithinTTL(t *testing.T) {
	tenant := uuid.Must(uuid.NewV7())
	fs := &fakeSettingStore{values: map[string]map[string]string{
		tenant.String(): {store.SettingBufferSeconds: "5"},
	}}
	svc := newTestService(fs)

	for i := 0; i < 3; i++ {
		if got := svc.BufferDelay(context.Background(), &tenant); got != 5*time.Second {
			t.Fatalf("BufferDelay = %v, want 5s", got)
		}
	}
	if fs.calls != 1 {
		t.Errorf("store hit %d times within TTL, want 1", fs.calls)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	tenant := uuid.Must(uuid.NewV7())
	fs := &fakeSettingStore{values: map[string]map[string]string{
		tenant.String(): {store.SettingBufferSeconds: "5"},
	}}
	svc := newTestService(fs)

	if got := svc.BufferDelay(context.Background(), &tenant); got != 5*time.Second {
		t.Fatalf("initial delay = %v", got)
	}

	fs.values[tenant.String()][store.SettingBufferSeconds] = "12"
	if got := svc.BufferDelay(context.Background(), &tenant); got != 5*time.Second {
		t.Fatalf("delay before invalidation = %v, want cached 5s", got)
	}

	svc.Invalidate(&tenant)
	if got := svc.BufferDelay(context.Background(), &tenant); got != 12*time.Second {
		t.Errorf("delay after invalidation = %v, want 12s", got)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	tenant := uuid.Must(uuid.NewV7())
	fs := &fakeSettingStore{values: map[string]map[string]string{
		"global":        {store.SettingBufferSeconds: "3"},
		tenant.String(): {store.SettingBufferSeconds: "20"},
	}}
	svc := newTestService(fs)

	if got := svc.BufferDelay(context.Background(), nil); got != 3*time.Second {
		t.Errorf("global delay = %v, want 3s", got)
	}
	if got := svc.BufferDelay(context.Background(), &tenant); got != 20*time.Second {
		t.Errorf("tenant delay = %v, want 20s", got)
	}
}
