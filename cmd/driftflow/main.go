package main

import (
	"log/slog"

	"github.com/driftflow/driftflow/pkg/driftflow"
)

func main() {

	//you may do your own logger setup here or use this default one with slog
	driftflow.SetupLogger()

	if err := driftflow.Start(nil); err != nil {
		slog.Error("Engine exited with error", "error", err)
	}
}
