package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Prober detects which backends are usable and caches the result for the
// process lifetime. The cached set is handed out as a copy, so an in-flight
// batch keeps a consistent view even if Refresh runs afterwards.
type Prober struct {
	mu       sync.Mutex
	adapters []Adapter
	timeout  time.Duration
	log      *logrus.Logger
	cached   []Descriptor
	probed   bool
}

// NewProber creates a prober over the given adapters. timeout bounds the
// whole detection pass; individual capability checks are bounded tighter.
func NewProber(adapters []Adapter, timeout time.Duration, log *logrus.Logger) *Prober {
	if timeout <= 0 {
		timeout = 2 * defaultProbeTimeout
	}
	return &Prober{adapters: adapters, timeout: timeout, log: log}
}

// Probe returns the cached descriptor set, detecting on first use.
func (p *Prober) Probe(ctx context.Context) []Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.probed {
		p.cached = p.detect(ctx)
		p.probed = true
	}
	return copyDescriptors(p.cached)
}

// Refresh forces re-detection. Intended for long-lived processes between
// batches; it must not be called while a batch is running.
func (p *Prober) Refresh(ctx context.Context) []Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cached = p.detect(ctx)
	p.probed = true
	return copyDescriptors(p.cached)
}

// Adapter returns the adapter registered under name, or nil.
func (p *Prober) Adapter(name string) Adapter {
	for _, a := range p.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (p *Prober) detect(ctx context.Context) []Descriptor {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	descs := make([]Descriptor, 0, len(p.adapters))
	for _, a := range p.adapters {
		desc := a.Probe(ctx)
		p.log.WithFields(logrus.Fields{
			"backend":   desc.Name,
			"available": desc.Available,
			"version":   desc.Version,
		}).Debug("probed backend")
		descs = append(descs, desc)
	}

	sort.SliceStable(descs, func(i, j int) bool {
		return descs[i].Priority < descs[j].Priority
	})
	return descs
}

func copyDescriptors(in []Descriptor) []Descriptor {
	out := make([]Descriptor, len(in))
	copy(out, in)
	return out
}
