// Package repl implements the line-oriented shell: prompt, tokenizing
// parser, meta-command dispatch, and the insert/select statement path.
// It is the "external collaborator" spec.md §1 carves out of the core
// storage engine: it changes how a line is read and printed, never how
// the B+-tree behaves.
package repl

import (
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"

	"sqlyte/internal/dblog"
	"sqlyte/internal/engine"
	"sqlyte/internal/storage"
	"sqlyte/internal/table"
)

const prompt = "lyt-db> "

const helpText = `supported commands:
  insert <id> <username> <email>   insert a row
  select                            print every row in ascending id order
  select where id = <n>             print the row with the given id, if any
  .exit                              flush and exit
  .btree                             print the B+-tree structure
  .constants                         print internal sizing constants
  .schema                            print the fixed row schema
  .stats                             print pager/tree diagnostics
  .help                              print this message
`

// REPL drives one interactive session against a table.Table.
type REPL struct {
	table *table.Table
	log   *logrus.Entry
	rl    *readline.Instance
	out   io.Writer
}

// New builds a REPL reading from rl and writing statement output to out.
func New(t *table.Table, log *logrus.Entry, rl *readline.Instance, out io.Writer) *REPL {
	return &REPL{table: t, log: log, rl: rl, out: out}
}

// Run reads lines until EOF (Ctrl-D) or `.exit`, flushing the table
// before returning in both cases -- per spec.md's Open Question, this
// implementation takes EOF-flushes-like-.exit as the safer default.
func (r *REPL) Run() error {
	for {
		r.rl.SetPrompt(prompt)
		line, err := r.rl.Readline()
		if errors.Is(err, io.EOF) {
			return r.table.Close()
		}
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return err
		}

		stmt := Parse(line)
		if exit, execErr := r.dispatch(stmt); execErr != nil {
			return execErr
		} else if exit {
			return nil
		}
	}
}

// dispatch executes one parsed statement. The returned bool reports
// whether the session should end (`.exit` was seen).
func (r *REPL) dispatch(stmt Statement) (bool, error) {
	switch stmt.Kind {
	case KindEmpty:
		return false, nil

	case KindMeta:
		return r.runMeta(stmt.Meta)

	case KindInsert:
		r.runInsert(stmt.Fields)
		return false, nil

	case KindSelect:
		r.runSelect()
		return false, nil

	case KindSelectWhere:
		r.runSelectWhere(stmt.ID)
		return false, nil

	case KindUnknown:
		fmt.Fprintln(r.rl.Stderr(), engine.ErrSyntax.Error())
		return false, nil
	}
	return false, nil
}

func (r *REPL) runMeta(cmd string) (bool, error) {
	switch cmd {
	case ".exit":
		return true, r.table.Close()
	case ".btree":
		fmt.Fprintln(r.out, "tree:")
		if err := r.table.PrintTree(r.out); err != nil {
			return false, err
		}
		return false, nil
	case ".constants":
		r.printConstants()
		return false, nil
	case ".schema":
		r.printSchema()
		return false, nil
	case ".stats":
		return false, r.printStats()
	case ".help":
		fmt.Fprint(r.out, helpText)
		return false, nil
	default:
		fmt.Fprintf(r.rl.Stderr(), "unrecognized command '%s'\n", cmd)
		return false, nil
	}
}

func (r *REPL) runInsert(fields []string) {
	row, err := engine.PrepareInsert(fields)
	if err != nil {
		if err == engine.ErrSyntax {
			fmt.Fprintln(r.rl.Stderr(), err.Error())
			return
		}
		fmt.Fprintln(r.out, err.Error())
		return
	}
	if err := r.table.Insert(row); err != nil {
		if errors.Is(err, table.ErrDuplicateKey) {
			fmt.Fprintln(r.out, "error: duplicate key.")
			return
		}
		r.fatal(err, "insert failed")
		return
	}
	fmt.Fprintln(r.out, "executed.")
}

func (r *REPL) runSelect() {
	rows, err := r.table.SelectAll()
	if err != nil {
		r.fatal(err, "select failed")
		return
	}
	for _, row := range rows {
		fmt.Fprintf(r.out, "( %d, %s, %s )\n", row.ID, row.Username, row.Email)
	}
	fmt.Fprintln(r.out, "executed.")
}

func (r *REPL) runSelectWhere(id uint32) {
	row, found, err := r.table.Find(id)
	if err != nil {
		r.fatal(err, "select failed")
		return
	}
	if found {
		fmt.Fprintf(r.out, "( %d, %s, %s )\n", row.ID, row.Username, row.Email)
	}
	fmt.Fprintln(r.out, "executed.")
}

func (r *REPL) printConstants() {
	fmt.Fprintln(r.out, "constants:")
	fmt.Fprintf(r.out, "ROW_SIZE: %d\n", storage.RowSize)
	fmt.Fprintf(r.out, "COMMON_NODE_HEADER_SIZE: %d\n", storage.CommonNodeHeaderSize)
	fmt.Fprintf(r.out, "LEAF_NODE_HEADER_SIZE: %d\n", storage.LeafNodeHeaderSize)
	fmt.Fprintf(r.out, "LEAF_NODE_CELL_SIZE: %d\n", storage.LeafNodeCellSize)
	fmt.Fprintf(r.out, "LEAF_NODE_SPACE_FOR_CELLS: %d\n", storage.LeafNodeSpaceForCells)
	fmt.Fprintf(r.out, "LEAF_NODE_MAX_CELLS: %d\n", storage.LeafNodeMaxCells)
}

func (r *REPL) printSchema() {
	fmt.Fprintln(r.out, "schema:")
	fmt.Fprintf(r.out, "id INTEGER PRIMARY KEY, username VARCHAR(%d), email VARCHAR(%d)\n",
		table.MaxUsernameLen, table.MaxEmailLen)
}

func (r *REPL) printStats() error {
	depth, err := r.table.Depth()
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, "stats:")
	fmt.Fprintf(r.out, "num_pages: %d\n", r.table.NumPages())
	fmt.Fprintf(r.out, "root_page: %d\n", r.table.RootPage())
	fmt.Fprintf(r.out, "depth: %d\n", depth)
	return nil
}

func (r *REPL) fatal(err error, msg string) {
	dblog.Fatal(r.log, err, msg)
}
