package server

import (
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices_Health(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{Health: health.NewServer()})
	if len(reg.services) != 1 || reg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("services = %v, want [grpc.health.v1.Health]", reg.services)
	}
}

func TestRegisterServices_NilHealthSkipped(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	if len(reg.services) != 0 {
		t.Errorf("services = %v, want none", reg.services)
	}
}

func TestNewGRPCServer(t *testing.T) {
	s := NewGRPCServer(Deps{Health: health.NewServer()})
	defer s.Stop()
	info := s.GetServiceInfo()
	if _, ok := info["grpc.health.v1.Health"]; !ok {
		t.Errorf("service info = %v, want health registered", info)
	}
}
