package plugin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wsinspect/internal/core"
)

type mockInjector struct {
	name    string
	initErr error
	cfg     map[string]any
}

func (m *mockInjector) Name() string { return m.name }

func (m *mockInjector) Init(cfg map[string]any) error {
	m.cfg = cfg
	return m.initErr
}

func (m *mockInjector) Start(ctx context.Context) error { return nil }

func (m *mockInjector) Stop(ctx context.Context) error { return nil }

func (m *mockInjector) Inject(ctx context.Context, req *SyntheticRequest) error { return nil }

func TestRegisterInjector_Duplicate(t *testing.T) {
	name := "dup-test"
	require.NoError(t, RegisterInjector(name, func() Injector { return &mockInjector{name: name} }))

	err := RegisterInjector(name, func() Injector { return &mockInjector{name: name} })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestNewInjector_PassesConfig(t *testing.T) {
	name := "cfg-test"
	require.NoError(t, RegisterInjector(name, func() Injector { return &mockInjector{name: name} }))

	inj, err := NewInjector(name, map[string]any{"addr": "127.0.0.1:8888"})
	require.NoError(t, err)
	assert.Equal(t, name, inj.Name())
	assert.Equal(t, "127.0.0.1:8888", inj.(*mockInjector).cfg["addr"])
	assert.Contains(t, InjectorNames(), name)
}

func TestNewInjector_NotFound(t *testing.T) {
	_, err := NewInjector("does-not-exist", nil)
	assert.True(t, errors.Is(err, core.ErrInjectorNotFound))
}

func TestNewInjector_InitError(t *testing.T) {
	name := "init-fail"
	require.NoError(t, RegisterInjector(name, func() Injector {
		return &mockInjector{name: name, initErr: fmt.Errorf("bad option")}
	}))

	_, err := NewInjector(name, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad option")
}

func TestDecodeOptions(t *testing.T) {
	type opts struct {
		Addr    string        `mapstructure:"addr"`
		Timeout time.Duration `mapstructure:"timeout"`
		Retries int           `mapstructure:"retries"`
		Brokers []string      `mapstructure:"brokers"`
	}

	var o opts
	err := DecodeOptions(map[string]any{
		"addr":    "127.0.0.1:8888",
		"timeout": "250ms",
		"retries": "3",
		"brokers": "a:9092,b:9092",
	}, &o)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8888", o.Addr)
	assert.Equal(t, 250*time.Millisecond, o.Timeout)
	assert.Equal(t, 3, o.Retries)
	assert.Equal(t, []string{"a:9092", "b:9092"}, o.Brokers)

	err = DecodeOptions(map[string]any{"unknown": true}, &o)
	assert.Error(t, err)
}
