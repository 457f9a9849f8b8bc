package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/pipeline"
	"github.com/haatos/securegate/internal/security"
	"github.com/haatos/securegate/internal/service"
	"github.com/haatos/securegate/internal/settings"
	"github.com/haatos/securegate/internal/store"
	"golang.org/x/term"

	_ "modernc.org/sqlite"
)

const usage = `usage: securegate <command> [arguments]

commands:
  validate <pipeline.yml>     parse and validate a pipeline definition
  run <pipeline.yml>          execute a pipeline locally, once
  secret set <name>           store a secret (value read from terminal)
  secret rm <name>            delete a secret
`

func main() {
	log.SetFlags(0)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "validate":
		err = validateCmd(args[1:])
	case "run":
		err = runCmd(args[1:])
	case "secret":
		err = secretCmd(args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("securegate: ", err)
	}
}

func openLocalDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	store.RunMigrations(db, internal.MigrationsDir)
	return db, nil
}

func validateCmd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("validate takes exactly one pipeline file")
	}
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	p, err := pipeline.Load(source)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d jobs)\n", p.Name, len(p.Jobs))
	return nil
}

// envSecretResolver serves local one-shot runs: secrets come from the
// caller's environment instead of the server's encrypted store.
type envSecretResolver struct{}

func (envSecretResolver) ResolveSecret(ctx context.Context, name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("secret '%s' is not set in the environment", name)
	}
	return v, nil
}

// runCmd executes a pipeline on the local machine against throwaway
// in-memory state, so a definition can be tried without a server. The
// process exits non-zero when any job fails, which makes it usable as a
// pre-push check.
func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	slots := fs.Int("slots", 2, "concurrent job slots")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run takes exactly one pipeline file")
	}

	source, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	p, err := pipeline.Load(source)
	if err != nil {
		return err
	}

	db, err := openLocalDatabase(":memory:")
	if err != nil {
		return err
	}
	defer db.Close()

	root, err := os.MkdirTemp("", "securegate-run-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(root)

	// artifact rows need a run to hang off, even a throwaway one
	pl, err := store.NewPipelineSQLiteStore(db, db).CreatePipeline(
		context.Background(), nil, p.Name, "", "main", string(source),
	)
	if err != nil {
		return err
	}
	run, err := store.NewRunSQLiteStore(db, db).CreateRun(
		context.Background(), pl.PipelineID, "main", internal.EventManual,
	)
	if err != nil {
		return err
	}

	outputCh := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for out := range outputCh {
			fmt.Print(out)
		}
	}()

	runner := service.NewRunner(
		run.RunID,
		&service.LocalExecutorFactory{Root: root},
		service.NewCacheService(store.NewCacheSQLiteStore(db, db)),
		service.NewArtifactService(store.NewArtifactSQLiteStore(db, db)),
		envSecretResolver{},
		outputCh,
	)

	statuses, err := service.NewScheduler(runner, *slots, func(jobID string, status store.JobStatus) {
		if status.Terminal() {
			fmt.Printf("[%s] %s\n", status, jobID)
		}
	}).Run(context.Background(), p)

	close(outputCh)
	<-done
	if err != nil {
		return err
	}

	for _, st := range statuses {
		if st == store.JobFailure {
			os.Exit(1)
		}
	}
	return nil
}

func secretCmd(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("secret takes a subcommand and a name")
	}
	action, name := args[0], args[1]

	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()
	db, err := openLocalDatabase(settings.Settings.SQLiteDatabase)
	if err != nil {
		return err
	}
	defer db.Close()

	secretSvc := service.NewSecretService(
		store.NewSecretSQLiteStore(db, db),
		security.NewAESEncrypter(security.NewHashKey()),
	)

	switch action {
	case "set":
		fmt.Fprintf(os.Stderr, "value for secret '%s': ", name)
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		if len(value) == 0 {
			return fmt.Errorf("empty secret value")
		}
		if _, err := secretSvc.SetSecret(context.Background(), name, string(value)); err != nil {
			return err
		}
		fmt.Printf("secret '%s' stored\n", name)
		return nil
	case "rm":
		if err := secretSvc.DeleteSecret(context.Background(), name); err != nil {
			return err
		}
		fmt.Printf("secret '%s' deleted\n", name)
		return nil
	default:
		return fmt.Errorf("unknown secret subcommand '%s'", action)
	}
}
