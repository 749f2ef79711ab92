package conveyor

import (
	"database/sql"

	"github.com/mhersta/conveyor/internal/engine"
	"github.com/mhersta/conveyor/internal/persistence"
	workerpkg "github.com/mhersta/conveyor/pkg/worker"
)

// WorkerBundle wires together an Engine and a Worker that share the same
// durable execution store.
//
// For now, we only provide a SQLite-backed bundle.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// store is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	store *persistence.SQLiteStore
}

// NewSQLiteBundle constructs a durable Engine + Worker combo sharing the
// same SQLite database. Executions and the dead-letter table are persisted
// in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:conveyor.db?_journal=WAL")
//	bundle, err := conveyor.NewSQLiteBundle(db, registry)
//	// register workflows on bundle.Engine
//	// submit triggers and run retries via bundle.Worker
func NewSQLiteBundle(db *sql.DB, d Dispatcher, opts ...workerpkg.Option) (*WorkerBundle, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}

	eng := engine.NewEngine(persistence.Persistence{
		Workflows:   persistence.NewInMemoryStore(),
		Executions:  store,
		DeadLetters: store,
	}, d)

	w := workerpkg.New(eng, store, opts...)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		store:  store,
	}, nil
}
