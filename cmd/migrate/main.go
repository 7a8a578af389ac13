// Command migrate manages the marketrelay database schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/marketrelay/backend/internal/infrastructure/config"
	"github.com/marketrelay/backend/internal/infrastructure/logger"
	"github.com/marketrelay/backend/internal/infrastructure/migration"
	"github.com/marketrelay/backend/migrations"
	"go.uber.org/zap"
)

const usage = `Usage: migrate [-dir path] [-log-level level] <command> [args]

Schema commands (connect using MR_DATABASE_* settings):
  up                    apply all pending migrations
  down -confirm         revert every migration
  step <n>              apply n migrations, or revert -n
  goto <version>        migrate up or down to version
  status                show the applied version and pending migrations
  force <version>       mark version applied without running it
  drop -confirm         drop every database object

File commands:
  create <name> [desc]  scaffold an up/down pair in -dir (default ./migrations)
  list                  list migrations in -dir, or the embedded set

Without -dir, schema commands use the migrations compiled into this binary.
`

var errUsage = errors.New("invalid usage")

type env struct {
	log  *zap.Logger
	dir  string
	args []string
	mg   *migration.Migrator
}

type command struct {
	db  bool
	run func(e *env) error
}

var commands = map[string]command{
	"up":   {db: true, run: func(e *env) error { return e.mg.Up() }},
	"down": {db: true, run: withConfirm(func(e *env) error { return e.mg.Down() })},
	"drop": {db: true, run: withConfirm(func(e *env) error { return e.mg.Drop() })},
	"step": {db: true, run: func(e *env) error {
		n, err := intArg(e.args)
		if err != nil {
			return err
		}
		return e.mg.Steps(n)
	}},
	"goto": {db: true, run: func(e *env) error {
		v, err := intArg(e.args)
		if err != nil || v < 0 {
			return errUsage
		}
		return e.mg.To(uint(v))
	}},
	"force": {db: true, run: func(e *env) error {
		v, err := intArg(e.args)
		if err != nil {
			return err
		}
		return e.mg.Force(v)
	}},
	"status": {db: true, run: status},
	"create": {run: create},
	"list":   {run: list},
}

func main() {
	dir := flag.String("dir", "", "migrations directory")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{Level: *level, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	e := &env{log: log, dir: *dir, args: flag.Args()[1:]}
	if cmd.db {
		closeDB, err := e.connect()
		if err != nil {
			log.Fatal("Database unavailable", zap.Error(err))
		}
		defer closeDB()
	}

	if err := cmd.run(e); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		log.Fatal("Migration command failed", zap.String("command", name), zap.Error(err))
	}
}

// connect opens the database and the migrator. The migrator owns db and
// closes it.
func (e *env) connect() (func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Database.Host, err)
	}

	if e.dir != "" {
		e.log.Info("Reading migrations from directory", zap.String("dir", e.dir))
		e.mg, err = migration.NewFromDir(db, e.dir, e.log)
	} else {
		e.mg, err = migration.New(db, migrations.FS, e.log)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return func() {
		if err := e.mg.Close(); err != nil {
			e.log.Warn("Close migrator", zap.Error(err))
		}
	}, nil
}

func withConfirm(fn func(e *env) error) func(e *env) error {
	return func(e *env) error {
		for _, a := range e.args {
			if a == "-confirm" || a == "--confirm" {
				return fn(e)
			}
		}
		return fmt.Errorf("%w: destructive command needs -confirm", errUsage)
	}
}

func intArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errUsage, args[0])
	}
	return n, nil
}

func status(e *env) error {
	st, err := e.mg.Status()
	if err != nil {
		return err
	}
	pending, err := e.mg.Pending()
	if err != nil {
		return err
	}
	if !st.Applied {
		fmt.Println("version: none")
	} else {
		fmt.Printf("version: %d (dirty: %t)\n", st.Version, st.Dirty)
	}
	fmt.Printf("pending: %d\n", len(pending))
	for _, v := range pending {
		fmt.Printf("  %d\n", v)
	}
	return nil
}

func create(e *env) error {
	if len(e.args) == 0 {
		return errUsage
	}
	dir := e.dir
	if dir == "" {
		dir = "migrations"
	}
	var desc string
	if len(e.args) > 1 {
		desc = e.args[1]
	}
	p, err := migration.Scaffold(dir, e.args[0], desc, time.Now())
	if err != nil {
		return err
	}
	e.log.Info("Migration created",
		zap.String("version", p.Version),
		zap.String("up", p.UpPath),
		zap.String("down", p.DownPath),
	)
	return nil
}

func list(e *env) error {
	var fsys fs.FS = migrations.FS
	if e.dir != "" {
		fsys = os.DirFS(e.dir)
	}
	entries, err := migration.List(fsys)
	if err != nil {
		return err
	}
	for _, en := range entries {
		down := ""
		if !en.HasDown {
			down = "  (no down)"
		}
		fmt.Printf("%d  %s%s\n", en.Version, en.Name, down)
	}
	return nil
}
