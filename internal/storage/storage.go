package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Storage keys
const (
	keyStats        = "stats"
	selectionPrefix = "sel/"
)

// Candidate is one ranked move as it entered the distribution.
type Candidate struct {
	Rank  int     `json:"rank"`
	Move  string  `json:"move"`
	Score int     `json:"score"`
	P     float64 `json:"p"`
	F     float64 `json:"f"`
}

// Record describes one guided selection.
type Record struct {
	Time       time.Time   `json:"time"`
	Position   string      `json:"position"`
	Go         string      `json:"go"`
	K          float64     `json:"k"`
	Candidates []Candidate `json:"candidates"`
	Rank       int         `json:"rank"`
	Draw       float64     `json:"draw"`
	Exhausted  bool        `json:"exhausted"`
	Move       string      `json:"move"`
}

// Stats aggregates every recorded selection.
type Stats struct {
	Selections int         `json:"selections"`
	ByRank     map[int]int `json:"by_rank"`
	Exhausted  int         `json:"exhausted"`
	Incomplete int         `json:"incomplete"`
}

// NewStats returns empty statistics
func NewStats() *Stats {
	return &Stats{ByRank: make(map[int]int)}
}

// TopRate returns the share of selections that played the top candidate.
func (s *Stats) TopRate() float64 {
	if s.Selections == 0 {
		return 0
	}
	return float64(s.ByRank[1]) / float64(s.Selections)
}

// Journal wraps BadgerDB for the selection journal
type Journal struct {
	db *badger.DB
}

// Open opens or creates a journal in dir.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	return open(opts)
}

// OpenInMemory opens a journal that is discarded on Close.
func OpenInMemory() (*Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Journal, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record stores rec and folds it into the statistics.
func (j *Journal) Record(rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return j.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(selectionKey(rec.Time), data); err != nil {
			return err
		}
		return updateStats(txn, func(s *Stats) {
			s.Selections++
			s.ByRank[rec.Rank]++
			if rec.Exhausted {
				s.Exhausted++
			}
		})
	})
}

// RecordIncomplete counts a search that ended without a usable candidate set.
func (j *Journal) RecordIncomplete() error {
	return j.db.Update(func(txn *badger.Txn) error {
		return updateStats(txn, func(s *Stats) { s.Incomplete++ })
	})
}

// Stats loads the statistics, empty if nothing was recorded yet
func (j *Journal) Stats() (*Stats, error) {
	var stats *Stats
	err := j.db.View(func(txn *badger.Txn) error {
		var err error
		stats, err = loadStats(txn)
		return err
	})
	return stats, err
}

// Recent returns up to n records, newest first.
func (j *Journal) Recent(n int) ([]Record, error) {
	var recs []Record

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(selectionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from just past the prefix.
		for it.Seek([]byte(selectionPrefix + "~")); it.Valid() && len(recs) < n; it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})

	return recs, err
}

func selectionKey(t time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d", selectionPrefix, t.UnixNano()))
}

func loadStats(txn *badger.Txn) (*Stats, error) {
	stats := NewStats()

	item, err := txn.Get([]byte(keyStats))
	if err == badger.ErrKeyNotFound {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, stats)
	})
	if stats.ByRank == nil {
		stats.ByRank = make(map[int]int)
	}
	return stats, err
}

func updateStats(txn *badger.Txn, update func(*Stats)) error {
	stats, err := loadStats(txn)
	if err != nil {
		return err
	}
	update(stats)

	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return txn.Set([]byte(keyStats), data)
}
