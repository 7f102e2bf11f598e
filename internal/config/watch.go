package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the config file on change and hands each valid new
// config to apply. Invalid or unreadable intermediate states are logged
// and skipped; the previous config stays in effect. Editors often emit
// bursts of write events, so reloads are debounced.
func Watch(ctx context.Context, path string, log zerolog.Logger, apply func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		// The file may not exist yet; watching its creation is not
		// worth the complexity, run without hot reload.
		log.Warn().Str("path", path).Err(err).Msg("config watch disabled")
		<-ctx.Done()
		return nil
	}

	log = log.With().Str("component", "config").Logger()

	var debounce *time.Timer
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			log.Warn().Err(err).Msg("config reload skipped")
			return
		}
		log.Info().Msg("config reloaded")
		apply(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
