package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op that must not reach the previous sink
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestAgentPrefix(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Agent("a7")("mode %s -> %s", "cruise", "draw")
	if want := "[agent a7] mode cruise -> draw"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	Prefixed("[loop]")("stopped after %d ticks", 12)
	if want := "[loop] stopped after 12 ticks"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLogfDefault(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("test message %d", 42)
}
