// Command sqlyte is the interactive shell entry point: sqlyte <db_file>.
package main

import (
	"fmt"
	"os"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"

	"sqlyte/internal/dblog"
	"sqlyte/internal/pager"
	"sqlyte/internal/repl"
	"sqlyte/internal/table"
)

func main() {
	var logLevel string
	var pageCachePages uint32

	pflag.StringVar(&logLevel, "log-level", "error", "logrus level for fatal diagnostics")
	pflag.Uint32Var(&pageCachePages, "page-cache-pages", pager.TableMaxPages, "number of pages the pager keeps resident")
	pflag.Parse()

	if pflag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: sqlyte <db_file>")
		os.Exit(1)
	}
	dbFile := pflag.Arg(0)

	log := dblog.New(logLevel)

	t, err := table.Open(dbFile, pager.WithMaxPages(pageCachePages))
	if err != nil {
		dblog.Fatal(log, err, "failed to open database file")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lyt-db> ",
		HistoryFile:     dbFile + ".history",
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		dblog.Fatal(log, err, "failed to start input reader")
	}
	defer rl.Close()

	session := repl.New(t, log, rl, os.Stdout)
	if err := session.Run(); err != nil {
		dblog.Fatal(log, err, "session ended with an error")
	}
}
