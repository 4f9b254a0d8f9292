package discovery

import (
	"fmt"
	"log"
	"strconv"

	"github.com/hashicorp/consul/api"
)

// ServiceRegistry registers the bot with a Consul agent
type ServiceRegistry struct {
	client      *api.Client
	serviceName string
	serviceID   string
	address     string
	servicePort string
	logger      *log.Logger
}

// NewServiceRegistry creates a new Consul service registry
func NewServiceRegistry(consulAddress, serviceName, serviceID, address, servicePort string, logger *log.Logger) (*ServiceRegistry, error) {
	config := api.DefaultConfig()
	config.Address = consulAddress

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	return &ServiceRegistry{
		client:      client,
		serviceName: serviceName,
		serviceID:   serviceID,
		address:     address,
		servicePort: servicePort,
		logger:      logger,
	}, nil
}

// Registration builds the agent registration, health checked through /health
func (sr *ServiceRegistry) Registration() (*api.AgentServiceRegistration, error) {
	port, err := strconv.Atoi(sr.servicePort)
	if err != nil {
		return nil, fmt.Errorf("invalid port: %s: %w", sr.servicePort, err)
	}

	return &api.AgentServiceRegistration{
		ID:      sr.serviceID,
		Name:    sr.serviceName,
		Address: sr.address,
		Port:    port,
		Tags:    []string{"forum", "webhook", "bot", "quiz"},
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%s/health", sr.address, sr.servicePort),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}, nil
}

// Register registers the service with a health check
func (sr *ServiceRegistry) Register() error {
	registration, err := sr.Registration()
	if err != nil {
		return err
	}

	if err := sr.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	sr.logger.Printf("Service %s registered with Consul", sr.serviceName)
	return nil
}

// Deregister removes the service from Consul
func (sr *ServiceRegistry) Deregister() error {
	if err := sr.client.Agent().ServiceDeregister(sr.serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	sr.logger.Printf("Service %s deregistered from Consul", sr.serviceName)
	return nil
}
