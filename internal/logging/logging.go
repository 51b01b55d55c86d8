package logging

import (
	"io"
	"log"
	"os"

	"github.com/covalenthq/lumberjack/v2"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Setup sends the standard logger to stdout and, when path is set, to a
// rotating file as well. Must run before the router is built so request
// logs follow.
func Setup(path string) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if path == "" {
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}))
	chimw.DefaultLogger = chimw.RequestLogger(&chimw.DefaultLogFormatter{Logger: log.Default(), NoColor: true})
	log.Printf("Logs en %s", path)
}
