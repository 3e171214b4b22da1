package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	var conf Config
	if err := LoadConfig(&conf, "testdata"); err != nil {
		t.Fatal(err)
	}
	if conf.Relay.Address != "ws://relay.test:9000/ws" {
		t.Errorf("address = %v", conf.Relay.Address)
	}
	if conf.Relay.Room != "test-room" || !conf.Debug {
		t.Errorf("conf = %+v", conf)
	}
	if conf.Attention.Interval != 4*time.Second {
		t.Errorf("interval default = %v, want 4s", conf.Attention.Interval)
	}
	if !conf.IsModerator() {
		t.Error("role moderator not detected")
	}
}

func TestRoleDefault(t *testing.T) {
	var conf Config
	if err := LoadConfig(&conf, "testdata"); err != nil {
		t.Fatal(err)
	}
	conf.Relay.Role = "participant"
	if conf.IsModerator() {
		t.Error("participant treated as moderator")
	}
}
