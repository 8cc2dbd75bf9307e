package db

import (
	"context"
	"database/sql"
)

// TxFunc runs inside a single transaction owned by the Writer.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

type writeJob struct {
	ctx context.Context
	fn  TxFunc
	ch  chan error
}

// Writer serializes all database mutations through one goroutine, each job
// wrapped in its own transaction.  Combined with the engine-level operation
// gate this is what makes read-decide-write sequences (take, restore, lazy
// grant eviction) atomic: no two mutations ever interleave.
type Writer struct {
	db   *sql.DB
	jobs chan writeJob
	done chan struct{}
}

func NewWriter(db *sql.DB) *Writer {
	w := &Writer{
		db:   db,
		jobs: make(chan writeJob, 128),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close drains outstanding jobs and stops the loop.
func (w *Writer) Close() {
	close(w.jobs)
	<-w.done
}

// Do submits fn and waits for its transaction to commit or roll back.
// If the caller's context expires while the job is queued or running, Do
// returns early; the job itself still runs to completion and its result is
// discarded via the buffered channel.
func (w *Writer) Do(ctx context.Context, fn TxFunc) error {
	ch := make(chan error, 1)

	select {
	case w.jobs <- writeJob{ctx: ctx, fn: fn, ch: ch}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer close(w.done)

	for j := range w.jobs {
		tx, err := w.db.BeginTx(j.ctx, nil)
		if err != nil {
			j.ch <- err
			continue
		}

		if err := j.fn(j.ctx, tx); err != nil {
			_ = tx.Rollback()
			j.ch <- err
			continue
		}

		j.ch <- tx.Commit()
	}
}
