package main

import (
	"os"
	"runtime/pprof"
	"sync"
	"time"
)

// startDefaultPGORecording writes a CPU profile to path until the returned
// stop function is called or d elapses, whichever comes first.
func startDefaultPGORecording(path string, d time.Duration) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		})
	}
	time.AfterFunc(d, stop)
	return stop, nil
}
