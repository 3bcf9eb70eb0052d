package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const bucketName = "matching_jobs"

// Journal persists accepted jobs until their handler has run.
type Journal interface {
	// Put records a job. Writing the same job ID twice keeps one entry.
	Put(job Job) error
	// Delete removes a job. Deleting an unknown ID is not an error.
	Delete(id uuid.UUID) error
	// Pending returns every recorded job, oldest first.
	Pending() ([]Job, error)
	Close() error
}

// BoltJournal is a Journal stored in a single BoltDB file.
type BoltJournal struct {
	db *bolt.DB
}

// OpenBoltJournal opens (or creates) the journal file at path and ensures the
// jobs bucket exists.
func OpenBoltJournal(path string) (*BoltJournal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("queue.OpenBoltJournal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("queue.OpenBoltJournal: create bucket: %w", err)
	}

	return &BoltJournal{db: db}, nil
}

func (j *BoltJournal) Put(job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue.BoltJournal.Put: encode: %w", err)
	}
	err = j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(job.ID[:], data)
	})
	if err != nil {
		return fmt.Errorf("queue.BoltJournal.Put: %w", err)
	}
	return nil
}

func (j *BoltJournal) Delete(id uuid.UUID) error {
	err := j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(id[:])
	})
	if err != nil {
		return fmt.Errorf("queue.BoltJournal.Delete: %w", err)
	}
	return nil
}

func (j *BoltJournal) Pending() ([]Job, error) {
	var jobs []Job
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("queue.BoltJournal.Pending: %w", err)
	}

	// Keys are random UUIDs, so bolt's key order says nothing about age.
	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].EnqueuedAt.Before(jobs[b].EnqueuedAt)
	})
	return jobs, nil
}

// Close releases the file lock.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}

// NopJournal keeps nothing. Jobs that do not fit the buffer are rejected.
type NopJournal struct{}

func (NopJournal) Put(Job) error           { return nil }
func (NopJournal) Delete(uuid.UUID) error  { return nil }
func (NopJournal) Pending() ([]Job, error) { return nil, nil }
func (NopJournal) Close() error            { return nil }
