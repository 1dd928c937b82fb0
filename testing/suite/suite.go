package suite

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	containerTTL = 120 // seconds
	maxWait      = 120 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"
)

// Suite - an empty Redis for one test, plus the address it listens on.
// Tests are skipped in -short mode and when Docker is unavailable.
type Suite struct {
	Storage *redis.Client

	Host string
	Port int
}

func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis suite in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), maxWait)
	t.Cleanup(cancel)

	pool := dockerPool(t)
	resource := runRedis(t, pool)

	host, port := hostPort(t, resource.GetHostPort(redisPort))
	client := connect(ctx, t, pool, resource, net.JoinHostPort(host, strconv.Itoa(port)))

	return ctx, &Suite{
		Storage: client,
		Host:    host,
		Port:    port,
	}
}

func dockerPool(t *testing.T) *dockertest.Pool {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	pool.MaxWait = maxWait

	return pool
}

// runRedis - the container removes itself once stopped and is hard killed after containerTTL.
func runRedis(t *testing.T, pool *dockertest.Pool) *dockertest.Resource {
	t.Helper()

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start redis container: %v", err)
	}

	_ = resource.Expire(containerTTL)

	return resource
}

// connect - retries until the server accepts connections, then hands out an empty database.
func connect(ctx context.Context, t *testing.T, pool *dockertest.Pool, resource *dockertest.Resource, addr string) *redis.Client {
	t.Helper()

	var client *redis.Client

	err := pool.Retry(func() error {
		client = redis.NewClient(&redis.Options{Addr: addr})
		return client.Ping(ctx).Err()
	})
	if err != nil {
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			t.Logf("could not purge redis container: %v", purgeErr)
		}

		t.Fatalf("could not connect to redis: %v", err)
	}

	if err = client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()

		if err := pool.Purge(resource); err != nil {
			t.Errorf("could not purge redis container: %v", err)
		}
	})

	return client
}

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("unexpected redis address %q: %v", addr, err)
	}

	port, err := strconv.Atoi(rawPort)
	if err != nil {
		t.Fatalf("unexpected redis port %q: %v", rawPort, err)
	}

	return host, port
}
