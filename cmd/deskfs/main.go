package main

import (
	"os"

	"deskfs/internal/fs"
	"deskfs/internal/logging"
)

var (
	logger = logging.GetLogger()
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		if kind := fs.Kind(err); kind != "unknown" {
			logger.Error("%v [%s]", err, kind)
		} else {
			logger.Error("%v", err)
		}
		os.Exit(1)
	}
}
