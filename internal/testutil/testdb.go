package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupTestDB starts a throwaway Postgres with the ledger schema applied.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _ := SetupTestDBWithURL(t)
	return db
}

// SetupTestDBWithURL is SetupTestDB for callers that open their own connections,
// such as the admin CLI.
func SetupTestDBWithURL(t *testing.T) (*sql.DB, string) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("ledger_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Concurrency tests hold one connection per in-flight transaction.
	db.SetMaxOpenConns(32)

	t.Cleanup(func() { db.Close() })

	if err := runMigrations(db, ".up.sql"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db, connStr
}

// ResetDB rolls the schema down and up again so one container can serve
// several independent subtests.
func ResetDB(t *testing.T, db *sql.DB) {
	t.Helper()
	if err := runMigrations(db, ".down.sql"); err != nil {
		t.Fatalf("roll back migrations: %v", err)
	}
	if err := runMigrations(db, ".up.sql"); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
}

// runMigrations applies every file with the given suffix. Up files run in
// name order, down files in reverse.
func runMigrations(db *sql.DB, suffix string) error {
	migrationsDir := findMigrationsDir()

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if suffix == ".down.sql" {
		slices.Reverse(files)
	}

	for _, f := range files {
		content, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", f, err)
		}
	}

	return nil
}

// findMigrationsDir walks up from the package under test to the repo root.
func findMigrationsDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "migrations"
	}
	for range 10 {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	return "migrations"
}
