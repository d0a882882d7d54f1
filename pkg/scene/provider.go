package scene

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// ErrSceneNotFound is returned when importing a path that holds no scene.
var ErrSceneNotFound = errors.New("scene not found")

// Provider reads and writes scenes in some external representation.
// The round trip may be lossy; callers compare results, they never assume
// Import(Export(s)) == s.
type Provider interface {
	// Ext returns the file extension used for paths, including the dot.
	Ext() string
	Export(ctx context.Context, s *Scene, path string) error
	Import(ctx context.Context, path string) (*Scene, error)
}

// Remover is implemented by providers whose exported paths are not plain
// files.
type Remover interface {
	Remove(path string) error
}

// Discard removes an exported path. Missing paths are not an error.
func Discard(p Provider, path string) error {
	if r, ok := p.(Remover); ok {
		return r.Remove(path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", path)
	}
	return nil
}

// MemoryProvider keeps exported scenes in memory as deep copies.
type MemoryProvider struct {
	mu     sync.RWMutex
	scenes map[string]*Scene

	// Transform, when set, is applied to every imported copy. Tests use it
	// to simulate lossy exporters.
	Transform func(*Scene)
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{scenes: make(map[string]*Scene)}
}

// Ext implements Provider.
func (p *MemoryProvider) Ext() string {
	return ".scene"
}

// Export implements Provider.
func (p *MemoryProvider) Export(ctx context.Context, s *Scene, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scenes[path] = s.Clone()
	return nil
}

// Import implements Provider.
func (p *MemoryProvider) Import(ctx context.Context, path string) (*Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	s, ok := p.scenes[path]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrSceneNotFound, path)
	}

	out := s.Clone()
	if p.Transform != nil {
		p.Transform(out)
	}
	return out, nil
}

// Remove implements Remover.
func (p *MemoryProvider) Remove(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.scenes, path)
	return nil
}

// Len returns the number of stored scenes.
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.scenes)
}
