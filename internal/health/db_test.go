package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err   error
	calls int
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	p.calls++
	return p.err
}

func TestDBChecker_HealthCheck(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"reachable", nil, false},
		{"unreachable", down, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pinger := &fakePinger{err: tt.err}
			err := NewDBChecker(pinger).HealthCheck(context.Background())

			if pinger.calls != 1 {
				t.Errorf("expected 1 ping, got %d", pinger.calls)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if tt.wantErr && !errors.Is(err, down) {
				t.Errorf("expected wrapped ping error, got %v", err)
			}
		})
	}
}
