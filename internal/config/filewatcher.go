package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vitaliisemenov/gwcore/internal/routestore"
)

// routeFile is the on-disk shape of the routes.yaml file: a plain list
// of routes, each optionally carrying an embedded upstream.
type routeFile struct {
	Routes []*routestore.Route `yaml:"routes"`
}

// FileWatcher is the reference routestore.Watcher (spec §6
// "Configuration watch" is an out-of-scope collaborator; this is the
// implementation the demo binary and integration tests use): it reads
// a YAML route file, publishes an initial Snapshot, and republishes a
// new one — with conf_version bumped — every time viper reports the
// file changed.
type FileWatcher struct {
	*routestore.Store
	path string
	ver  atomic.Uint64
}

// NewFileWatcher loads path once, publishes the initial snapshot, and
// starts watching path for changes via viper.WatchConfig.
func NewFileWatcher(path string) (*FileWatcher, error) {
	w := &FileWatcher{Store: routestore.NewStore(), path: path}

	if err := w.reload(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := w.reload(); err != nil {
			// A bad edit to the route file must not take down the running
			// gateway; the previous snapshot stays live until the file is
			// fixed (spec's rebuild protocol never tears down a working
			// trie for a failed rebuild).
			return
		}
	})
	v.WatchConfig()

	return w, nil
}

func (w *FileWatcher) reload() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("config: read route file: %w", err)
	}

	var rf routeFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return fmt.Errorf("config: parse route file: %w", err)
	}

	if err := routestore.Validate(rf.Routes); err != nil {
		return fmt.Errorf("config: validate route file: %w", err)
	}

	version := w.ver.Add(1)
	for _, r := range rf.Routes {
		r.ConfVer = version
		if r.Upstream != nil && r.Upstream.Parent == nil {
			r.Upstream.Parent = &routestore.CleanupParent{Key: r.ID}
		}
	}

	w.Store.Swap(&routestore.Snapshot{ConfVersion: version, Routes: rf.Routes})
	return nil
}
