package discovery

import (
	"io"
	"log"
	"testing"
)

func TestRegistration(t *testing.T) {
	sr, err := NewServiceRegistry("consul:8500", "forum-bot-service", "forum-bot-service-1", "forum-bot", "5000", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewServiceRegistry failed: %v", err)
	}

	reg, err := sr.Registration()
	if err != nil {
		t.Fatalf("Registration failed: %v", err)
	}
	if reg.ID != "forum-bot-service-1" || reg.Name != "forum-bot-service" || reg.Port != 5000 {
		t.Errorf("Unexpected registration %+v", reg)
	}
	if reg.Check == nil || reg.Check.HTTP != "http://forum-bot:5000/health" {
		t.Errorf("Unexpected health check %+v", reg.Check)
	}
}

func TestRegistrationInvalidPort(t *testing.T) {
	sr, err := NewServiceRegistry("consul:8500", "forum-bot-service", "id", "forum-bot", "http", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewServiceRegistry failed: %v", err)
	}
	if _, err := sr.Registration(); err == nil {
		t.Errorf("Expected an error for a non-numeric port")
	}
}
