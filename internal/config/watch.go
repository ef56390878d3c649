package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Store holds the live configuration. Readers always see a complete,
// validated Config.
type Store struct {
	cur atomic.Pointer[Config]
}

func NewStore(c *Config) *Store {
	s := &Store{}
	if c == nil {
		c = Default()
	}
	s.cur.Store(c)
	return s
}

func (s *Store) Load() *Config { return s.cur.Load() }

// Watch reloads path whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file by rename are seen.
// A file that fails to load is logged and the previous config stays live.
func (s *Store) Watch(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建配置监听失败: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("监听配置目录失败: %w", err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				s.reload(path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warnln("[Config] watcher error")
			}
		}
	}()
	return nil
}

func (s *Store) reload(path string) {
	c, err := Load(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warnln("[Config] reload failed, keeping previous config")
		return
	}
	s.cur.Store(c)
	logrus.WithField("path", path).Infoln("[Config] reloaded")
}
