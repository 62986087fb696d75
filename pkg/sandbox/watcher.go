package sandbox

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// PolicyWatcher reloads the security policy when its file changes.
// Reload failures keep the previous policy in place.
type PolicyWatcher struct {
	watcher  *fsnotify.Watcher
	holder   *PolicyHolder
	path     string
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// WatchPolicy starts watching a policy file and swapping reloaded
// policies into the holder.
func WatchPolicy(path string, holder *PolicyHolder) (*PolicyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	pw := &PolicyWatcher{
		watcher:  watcher,
		holder:   holder,
		path:     path,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go pw.run()

	return pw, nil
}

// Stop stops the watcher.
func (pw *PolicyWatcher) Stop() error {
	close(pw.stopCh)
	return pw.watcher.Close()
}

func (pw *PolicyWatcher) run() {
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(pw.path) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				log.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Policy file change detected")
				pw.scheduleReload()
			}

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Policy watcher error")

		case <-pw.stopCh:
			if pw.timer != nil {
				pw.timer.Stop()
			}
			return
		}
	}
}

func (pw *PolicyWatcher) scheduleReload() {
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.timer = time.AfterFunc(pw.debounce, pw.reload)
}

func (pw *PolicyWatcher) reload() {
	policy, err := LoadPolicy(pw.path)
	if err != nil {
		log.Error().Err(err).Str("path", pw.path).Msg("Policy reload failed, keeping previous policy")
		return
	}

	pw.holder.Replace(policy)
	log.Info().Str("path", pw.path).Msg("Security policy reloaded")
}
