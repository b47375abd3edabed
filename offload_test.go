package normalmap

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

// mockOffloader implements Offloader for testing.
type mockOffloader struct {
	name    string
	initErr error
	opErr   error

	mu       sync.Mutex
	closed   bool
	logger   *slog.Logger
	provider any
	binds    int
	reflects int
}

func (m *mockOffloader) Name() string { return m.name }

func (m *mockOffloader) Init() error { return m.initErr }

func (m *mockOffloader) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *mockOffloader) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockOffloader) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

func (m *mockOffloader) SetDeviceProvider(p any) error {
	m.mu.Lock()
	m.provider = p
	m.mu.Unlock()
	return nil
}

func (m *mockOffloader) ConfigureSources([]byte, []Texel16, []Texel16) error {
	m.mu.Lock()
	m.binds++
	m.mu.Unlock()
	return m.opErr
}

func (m *mockOffloader) Reflect(int, int, int, int) error {
	m.mu.Lock()
	m.reflects++
	m.mu.Unlock()
	return m.opErr
}

func (m *mockOffloader) Drain(context.Context) error { return m.opErr }

// resetOffloader clears the global offloader state between tests.
func resetOffloader() {
	offloadMu.Lock()
	offloader = nil
	offloadMu.Unlock()

	offloadSeqMu.Lock()
	clear(offloadBound)
	offloadSeqMu.Unlock()
}

func TestRegisterOffloaderNil(t *testing.T) {
	resetOffloader()

	err := RegisterOffloader(nil)
	if err == nil {
		t.Fatal("expected error when registering nil offloader")
	}
	if err.Error() != "normalmap: offloader must not be nil" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if ActiveOffloader() != nil {
		t.Error("offloader should remain nil after failed registration")
	}
}

func TestRegisterOffloaderInitError(t *testing.T) {
	resetOffloader()

	initErr := errors.New("device lost")
	mock := &mockOffloader{name: "failing", initErr: initErr}
	if err := RegisterOffloader(mock); !errors.Is(err, initErr) {
		t.Fatalf("RegisterOffloader() = %v, want %v", err, initErr)
	}
	if ActiveOffloader() != nil {
		t.Error("offloader should not be registered when Init fails")
	}
}

func TestRegisterOffloaderReplacesAndCloses(t *testing.T) {
	resetOffloader()
	t.Cleanup(resetOffloader)

	first := &mockOffloader{name: "first"}
	second := &mockOffloader{name: "second"}
	if err := RegisterOffloader(first); err != nil {
		t.Fatalf("RegisterOffloader(first): %v", err)
	}
	if err := RegisterOffloader(second); err != nil {
		t.Fatalf("RegisterOffloader(second): %v", err)
	}
	if got := ActiveOffloader(); got != second {
		t.Errorf("ActiveOffloader() = %v, want second", got)
	}
	if !first.isClosed() {
		t.Error("previous offloader should be closed on replacement")
	}
	if second.isClosed() {
		t.Error("active offloader should not be closed")
	}
}

func TestRegisterSameOffloaderTwice(t *testing.T) {
	resetOffloader()
	t.Cleanup(resetOffloader)

	mock := &mockOffloader{name: "same"}
	_ = RegisterOffloader(mock)
	_ = RegisterOffloader(mock)
	if mock.isClosed() {
		t.Error("re-registering the same offloader must not close it")
	}
}

func TestUnregisterOffloader(t *testing.T) {
	resetOffloader()

	mock := &mockOffloader{name: "gone"}
	_ = RegisterOffloader(mock)
	UnregisterOffloader()
	if ActiveOffloader() != nil {
		t.Error("ActiveOffloader() should be nil after UnregisterOffloader")
	}
	if !mock.isClosed() {
		t.Error("UnregisterOffloader should close the offloader")
	}
	UnregisterOffloader() // no-op
}

func TestSetOffloaderDeviceProvider(t *testing.T) {
	resetOffloader()
	t.Cleanup(resetOffloader)

	if err := SetOffloaderDeviceProvider("nothing registered"); err != nil {
		t.Errorf("SetOffloaderDeviceProvider without offloader = %v, want nil", err)
	}

	mock := &mockOffloader{name: "shared"}
	_ = RegisterOffloader(mock)
	provider := struct{ id int }{7}
	if err := SetOffloaderDeviceProvider(provider); err != nil {
		t.Fatalf("SetOffloaderDeviceProvider: %v", err)
	}
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.provider != provider {
		t.Errorf("provider = %v, want %v", mock.provider, provider)
	}
}

func TestConcurrentOffloaderAccess(t *testing.T) {
	resetOffloader()
	t.Cleanup(resetOffloader)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = RegisterOffloader(&mockOffloader{name: "concurrent"})
		}()
		go func() {
			defer wg.Done()
			_ = ActiveOffloader()
		}()
	}
	wg.Wait()
	if ActiveOffloader() == nil {
		t.Error("an offloader should be registered")
	}
}
