// Package testinfra starts throwaway infrastructure containers for integration tests.
package testinfra

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

type Redis struct {
	Host string
	Port int
}

type Neo4j struct {
	Host string
	Port int
}

// RequireIntegration skips the calling test in -short mode.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// StartPostgres starts postgres:16-alpine and registers its termination with t.Cleanup.
// The test is skipped when no container runtime is available.
func StartPostgres(ctx context.Context, t *testing.T) Postgres {
	t.Helper()
	RequireIntegration(t)

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "iris",
			"POSTGRES_PASSWORD": "iris",
			"POSTGRES_DB":       "iris",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container := start(ctx, t, req)
	host, port := endpoint(ctx, t, container, "5432")

	return Postgres{
		Host:     host,
		Port:     port,
		User:     "iris",
		Password: "iris",
		Database: "iris",
	}
}

func StartRedis(ctx context.Context, t *testing.T) Redis {
	t.Helper()
	RequireIntegration(t)

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container := start(ctx, t, req)
	host, port := endpoint(ctx, t, container, "6379")
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("invalid redis port %q: %v", port, err)
	}

	return Redis{Host: host, Port: portNum}
}

// StartNeo4j starts neo4j:5 with authentication disabled and returns its bolt endpoint.
func StartNeo4j(ctx context.Context, t *testing.T) Neo4j {
	t.Helper()
	RequireIntegration(t)

	req := testcontainers.ContainerRequest{
		Image:        "neo4j:5",
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "none",
		},
		WaitingFor: wait.ForLog("Started.").
			WithStartupTimeout(120 * time.Second),
	}

	container := start(ctx, t, req)
	host, port := endpoint(ctx, t, container, "7687")
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("invalid bolt port %q: %v", port, err)
	}

	return Neo4j{Host: host, Port: portNum}
}

func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("container runtime unavailable for %s: %v", req.Image, err)
	}

	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = container.Terminate(stopCtx)
	})
	return container
}

func endpoint(ctx context.Context, t *testing.T, container testcontainers.Container, port string) (string, string) {
	t.Helper()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to read container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to read mapped port %s: %v", port, err)
	}
	return host, mapped.Port()
}

func (p Postgres) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", p.User, p.Password, p.Host, p.Port, p.Database)
}
