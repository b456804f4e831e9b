package proxy

import (
	"testing"
	"time"
)

func TestNewHTTPClientDirect(t *testing.T) {
	c, err := NewHTTPClient("", 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if c.Transport != nil {
		t.Fatalf("direct client should use the default transport")
	}
	if c.Timeout != 5*time.Second {
		t.Fatalf("timeout = %v", c.Timeout)
	}
}

func TestNewHTTPClientSocks(t *testing.T) {
	c, err := NewHTTPClient("127.0.0.1:1080", time.Minute)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if c.Transport == nil {
		t.Fatalf("socks client has no transport")
	}
	if c.Timeout != time.Minute {
		t.Fatalf("timeout = %v", c.Timeout)
	}
}
