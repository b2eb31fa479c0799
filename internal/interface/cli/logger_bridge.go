package cli

import (
	"github.com/YoshitsuguKoike/deestage/internal/app"
	"github.com/YoshitsuguKoike/deestage/internal/infra/fs"
)

// InitializeLoggers routes the app and storage layers through the CLI logger
func InitializeLoggers(logger *Logger) {
	app.SetLogger(logger)
	fs.SetLogger(logger)
}
