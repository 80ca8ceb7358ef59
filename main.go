package main

import (
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/swdunlop/zugzug-go"
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: `2006-01-02 15:04:05`}).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log
	zlog.Logger = log
}

var tasks = zugzug.Tasks{}

func main() {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	// settings such as LISTEN_ADDRESS may be kept in a .env file; the environment takes precedence.
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		zlog.Warn().Err(err).Msg(`could not load .env`)
	}
	if len(os.Args) < 2 {
		os.Args = append(os.Args, `watch`)
	}
	zugzug.Main(tasks)
}
