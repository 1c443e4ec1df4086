package persistence

import (
	"context"
	"time"

	"github.com/cppla/winsome/utils"
)

// Autosave writes a snapshot every interval and once more when ctx is done.
func Autosave(ctx context.Context, path string, s Stores, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := Save(path, s); err != nil {
				utils.Sugar.Errorf("final snapshot failed: %v", err)
				return
			}
			utils.Sugar.Infof("final snapshot written to %s", path)
			return
		case <-ticker.C:
			if err := Save(path, s); err != nil {
				utils.Sugar.Errorf("autosave failed: %v", err)
			}
		}
	}
}
