package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const (
	createTimeout = 10 * time.Second
	removeTimeout = 5 * time.Second
	retryBackoff  = time.Second
)

var errPoolStopped = errors.New("container pool is stopped")

// Pool keeps PoolSize idle containers ready so a run does not pay for
// container start-up. A container serves exactly one run: Acquire hands it
// out, Retire destroys it and asks for a replacement.
type Pool struct {
	cli    *client.Client
	config Config
	logger *slog.Logger

	idle   chan string
	refill chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates an empty pool. Nothing is started until Start.
func NewPool(cli *client.Client, cfg Config, logger *slog.Logger) *Pool {
	size := max(cfg.PoolSize, 1)
	return &Pool{
		cli:    cli,
		config: cfg,
		logger: logger,
		idle:   make(chan string, size),
		refill: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the filler goroutine.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting container pool", slog.Int("size", cap(p.idle)))
		p.wg.Add(1)
		go p.fill()
	})
}

// Stop ends the filler and removes every idle container. Containers already
// handed out are removed by their Retire call.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping container pool")
		close(p.done)
		p.wg.Wait()

		for {
			select {
			case id := <-p.idle:
				p.remove(id)
			default:
				return
			}
		}
	})
}

// Acquire takes an idle container, waiting until one is ready, the pool
// stops or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.idle:
		p.wake()
		return id, nil
	case <-p.done:
		return "", errPoolStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Retire force-removes a used container, killing anything still running in it.
func (p *Pool) Retire(id string) {
	p.remove(id)
}

func (p *Pool) wake() {
	select {
	case p.refill <- struct{}{}:
	default:
	}
}

// fill tops the pool up whenever it is woken, backing off after a failed create.
func (p *Pool) fill() {
	defer p.wg.Done()

	for {
		for len(p.idle) < cap(p.idle) {
			id, err := p.create()
			if err != nil {
				p.logger.Error("failed to create pooled container", slog.String("error", err.Error()))
				select {
				case <-time.After(retryBackoff):
					continue
				case <-p.done:
					return
				}
			}

			select {
			case p.idle <- id:
			case <-p.done:
				p.remove(id)
				return
			}
		}

		select {
		case <-p.refill:
		case <-p.done:
			return
		}
	}
}

// create starts a locked-down container idling on `sleep infinity`.
func (p *Pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), createTimeout)
	defer cancel()

	pids := p.config.PidsLimit
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    p.config.MemoryLimit,
			NanoCPUs:  int64(p.config.CPULimit * 1e9),
			PidsLimit: &pids,
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		// The run directory is read back through the archive API, which does
		// not see tmpfs mounts, so the root filesystem stays writable.
		ReadonlyRootfs: false,
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:           p.config.Image,
		Cmd:             []string{"sleep", "infinity"},
		User:            "nobody",
		NetworkDisabled: true,
		Labels:          map[string]string{"app": "csv-extractor"},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return "", fmt.Errorf("starting container %s: %w", resp.ID, err)
	}

	p.logger.Debug("container ready", slog.String("id", resp.ID))
	return resp.ID, nil
}

func (p *Pool) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Error("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}
