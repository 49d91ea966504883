//go:build govips && cgo

package imageprep

import (
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var vipsRuntime struct {
	sync.Mutex
	once    sync.Once
	running bool
}

// Startup initializes libvips once per process. Room photos arrive one
// per job, so the operation cache is kept small in favor of a larger
// pixel buffer allowance.
func Startup() error {
	vipsRuntime.once.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		vipsRuntime.Lock()
		vipsRuntime.running = true
		vipsRuntime.Unlock()
	})
	return nil
}

func Shutdown() {
	vipsRuntime.Lock()
	defer vipsRuntime.Unlock()
	if !vipsRuntime.running {
		return
	}
	vips.Shutdown()
	vipsRuntime.running = false
}

func newPreprocessor() (Preprocessor, error) {
	return govipsPreprocessor{}, nil
}
