package faktory_test

import (
	"errors"
	"testing"

	"github.com/xraph/faktory"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := faktory.NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Concurrency != 20 {
		t.Errorf("Concurrency = %d, want 20", cfg.Concurrency)
	}
	if len(cfg.Queues) != 1 || cfg.Queues[0] != "default" {
		t.Errorf("Queues = %v, want [default]", cfg.Queues)
	}
	if got := cfg.EffectivePoolSize(); got != 25 {
		t.Errorf("EffectivePoolSize = %d, want 25", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []faktory.Option
		want error
	}{
		{"zero concurrency", []faktory.Option{faktory.WithConcurrency(0)}, faktory.ErrInvalidConcurrency},
		{"no queues", []faktory.Option{faktory.WithQueues()}, faktory.ErrNoQueues},
		{"bad weight", []faktory.Option{faktory.WithWeight("low", 0)}, faktory.ErrInvalidWeight},
		{"pool too small", []faktory.Option{faktory.WithConcurrency(10), faktory.WithPoolSize(11)}, faktory.ErrPoolTooSmall},
		{"pool exactly enough", []faktory.Option{faktory.WithConcurrency(10), faktory.WithPoolSize(12)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := faktory.NewConfig(tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
