package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

// Store maps endpoint names to their signing secrets, loaded from a YAML
// file. An endpoint may list several secrets at once: during rotation both
// the old and the new secret stay valid until the old one is removed from
// the file.
//
// The file is hot-reloaded via fsnotify, so rotating a secret does not
// require a restart. A reload that fails to parse keeps the previous state.
type Store struct {
	path string
	opts standardwebhooks.Options

	mu        sync.RWMutex
	verifiers map[string][]*standardwebhooks.Webhook

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

type endpointsFile struct {
	Endpoints map[string]endpointEntry `yaml:"endpoints"`
}

type endpointEntry struct {
	Secrets []string `yaml:"secrets"`
}

// NewStore loads the endpoints file at path. Verification options apply to
// every verifier the store hands out.
func NewStore(path string, opts standardwebhooks.Options) (*Store, error) {
	s := &Store{
		path: path,
		opts: opts,
		done: make(chan struct{}),
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

// Reload re-reads the endpoints file and swaps in the new state.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading endpoints file: %w", err)
	}

	var file endpointsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing endpoints file: %w", err)
	}

	verifiers := make(map[string][]*standardwebhooks.Webhook, len(file.Endpoints))
	for name, entry := range file.Endpoints {
		if len(entry.Secrets) == 0 {
			return fmt.Errorf("endpoint %q has no secrets", name)
		}
		for _, secret := range entry.Secrets {
			wh, err := standardwebhooks.NewWithOptions(secret, s.opts)
			if err != nil {
				return fmt.Errorf("endpoint %q: %w", name, err)
			}
			verifiers[name] = append(verifiers[name], wh)
		}
	}

	s.mu.Lock()
	s.verifiers = verifiers
	s.mu.Unlock()

	return nil
}

// Verifiers returns the verifiers for an endpoint, one per configured
// secret, in file order.
func (s *Store) Verifiers(endpoint string) ([]*standardwebhooks.Webhook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.verifiers[endpoint]
	return v, ok
}

// Endpoints returns the names of all configured endpoints.
func (s *Store) Endpoints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.verifiers))
	for name := range s.verifiers {
		names = append(names, name)
	}
	return names
}

// Watch starts reloading the endpoints file whenever it changes. Watching
// the parent directory instead of the file itself survives the
// rename-and-replace pattern editors and config management tools use.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	s.watcher = watcher
	go s.watchLoop()

	return nil
}

func (s *Store) watchLoop() {
	target := filepath.Clean(s.path)

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if err := s.Reload(); err != nil {
				log.Error().Err(err).Str("file", s.path).Msg("Failed to reload endpoints file, keeping previous secrets")
				continue
			}
			log.Info().Str("file", s.path).Msg("Reloaded endpoint secrets")
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Endpoints file watcher error")
		}
	}
}

// Close stops the watcher, if running. Safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
