package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/storage"
)

func record(identity uint64, group uint32) *domain.IdentityRecord {
	return &domain.IdentityRecord{
		Identity: identity,
		Salt:     []byte("salt-salt-salt-s"),
		Verifier: []byte{1, 2, 3, 4},
		Group:    group,
	}
}

func TestStore_PutResolve(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := record(1, 3)
	if err := s.Put(ctx, rec, false); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rec.Salt[0] = 'X'

	got, err := s.Resolve(ctx, 1)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Salt[0] != 's' {
		t.Error("stored record aliases the caller's salt")
	}
	got.Verifier[0] = 99
	again, _ := s.Resolve(ctx, 1)
	if again.Verifier[0] != 1 {
		t.Error("resolved record aliases the stored verifier")
	}

	if _, err := s.Resolve(ctx, 2); !errors.Is(err, domain.ErrUnknownIdentity) {
		t.Errorf("Resolve(2) error = %v, want ErrUnknownIdentity", err)
	}
}

func TestStore_PutConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	tests := []struct {
		name      string
		rec       *domain.IdentityRecord
		overwrite bool
		wantErr   error
	}{
		{"first", record(5, 1), false, nil},
		{"duplicate", record(5, 2), false, domain.ErrIdentityConflict},
		{"overwrite", record(5, 2), true, nil},
		{"invalid", &domain.IdentityRecord{Identity: 6}, false, domain.ErrIdentityValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Put(ctx, tt.rec, tt.overwrite)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Put() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	rec, _ := s.Resolve(ctx, 5)
	if rec.Group != 2 {
		t.Errorf("Group = %d, want 2", rec.Group)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStore_ScanOrdered(t *testing.T) {
	s := New(WithShardCount(4))
	ctx := context.Background()
	for _, id := range []uint64{9, 3, 7, 1, 5} {
		if err := s.Put(ctx, record(id, 0), false); err != nil {
			t.Fatalf("Put(%d) error = %v", id, err)
		}
	}

	var ids []uint64
	if err := s.Scan(ctx, func(rec *domain.IdentityRecord) bool {
		ids = append(ids, rec.Identity)
		return len(ids) < 4
	}); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := []uint64{1, 3, 5, 7}
	if len(ids) != len(want) {
		t.Fatalf("Scan() ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}

	if err := s.Delete(ctx, 3); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.Len() != 4 {
		t.Errorf("Len() after Delete = %d, want 4", s.Len())
	}
}

func TestStore_Cancelled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Resolve(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
}

func TestStore_Close(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Put(ctx, record(1, 0), false)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := s.Resolve(ctx, 1); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Resolve() error = %v, want ErrClosed", err)
	}
	if err := s.Put(ctx, record(2, 0), false); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Put() error = %v, want ErrClosed", err)
	}
}
