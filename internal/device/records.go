// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Thermoquad/verter/internal/logger"
)

const recordTrailer = "end record\n"

// recordFiles saves every capture record to its own file. It relies on the
// supervisor writing the trailer line on its own.
type recordFiles struct {
	dir string
	f   *os.File
}

func (r *recordFiles) Write(p []byte) (int, error) {
	if r.f == nil {
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return 0, fmt.Errorf("capture dir: %w", err)
		}
		name := filepath.Join(r.dir, "capture-"+time.Now().Format("20060102-150405.000")+".txt")
		f, err := os.Create(name)
		if err != nil {
			return 0, fmt.Errorf("capture file: %w", err)
		}
		r.f = f
	}

	n, err := r.f.Write(p)
	if err != nil {
		return n, err
	}
	if string(p) == recordTrailer {
		name := r.f.Name()
		err = r.f.Close()
		r.f = nil
		logger.Info("capture saved to %s", name)
	}
	return n, err
}
