package envutil

import (
	"testing"
	"time"
)

func TestDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("ENVUTIL_D1", "45")
	t.Setenv("ENVUTIL_D2", "1500ms")
	t.Setenv("ENVUTIL_D3", "bogus")

	if got := Duration("ENVUTIL_D1", time.Second); got != 45*time.Second {
		t.Fatalf("seconds: want=45s got=%s", got)
	}
	if got := Duration("ENVUTIL_D2", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("go syntax: want=1.5s got=%s", got)
	}
	if got := Duration("ENVUTIL_D3", 7*time.Second); got != 7*time.Second {
		t.Fatalf("fallback: want=7s got=%s", got)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("ENVUTIL_B", "off")
	t.Setenv("ENVUTIL_I", "12")
	if Bool("ENVUTIL_B", true) {
		t.Fatalf("bool: want=false got=true")
	}
	if !Bool("ENVUTIL_UNSET_B", true) {
		t.Fatalf("bool default: want=true got=false")
	}
	if got := Int("ENVUTIL_I", 0); got != 12 {
		t.Fatalf("int: want=12 got=%d", got)
	}
}
