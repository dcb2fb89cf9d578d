// Package core implements the storage engine: a single append-only log
// file, an in-memory index of payload positions, an LRU read cache, and
// the put/get/delete/ttl/compact operations that tie them together.
package core

import (
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"kvstore/internal/cache"
	"kvstore/internal/lock"
	"kvstore/internal/logfile"
	"kvstore/internal/record"
)

var (
	// ErrKeyNotFound marks logical absence: an unknown or expired key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDataCorruption means a read through the index hit a record that
	// failed checksum or decode. The operation fails; the engine stays
	// open.
	ErrDataCorruption = errors.New("data corruption detected")

	// ErrNegativeTTL rejects ttl arguments below zero.
	ErrNegativeTTL = errors.New("ttl must not be negative")

	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("engine is closed")
)

// Options configure an engine at open time.
type Options struct {
	// Path of the log file. Required.
	Path string

	// CacheCapacity bounds the recency cache. Zero means
	// cache.DefaultCapacity; negative is rejected.
	CacheCapacity int

	Logger     log.Logger
	Registerer prometheus.Registerer
}

// Engine is a single-file Bitcask-style store. All operations are
// serialized through one mutex; an operation runs to completion before
// the next begins.
type Engine struct {
	mu sync.Mutex

	logger  log.Logger
	file    *logfile.File
	lockF   *os.File
	index   Index
	cache   *cache.Cache
	metrics *Metrics

	putCount       uint64
	deleteCount    uint64
	lastCompaction time.Time

	closed bool
}

// Open opens the store at opts.Path, creating the file if it does not
// exist, and rebuilds the index by replaying the log. A torn tail left
// by a crash is truncated away.
//
// Pair Open with a deferred Close so the handles and the store lock are
// released on every exit path.
func Open(opts Options) (*Engine, error) {
	if opts.Path == "" {
		return nil, errors.New("store path is required")
	}
	if opts.CacheCapacity < 0 {
		return nil, errors.Errorf("cache capacity must be positive, got %d", opts.CacheCapacity)
	}

	capacity := opts.CacheCapacity
	if capacity == 0 {
		capacity = cache.DefaultCapacity
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	lockF, err := lock.Acquire(opts.Path)
	if err != nil {
		return nil, err
	}

	file, err := logfile.Open(opts.Path)
	if err != nil {
		lock.Release(lockF)
		return nil, err
	}

	e := &Engine{
		logger:  logger,
		file:    file,
		lockF:   lockF,
		index:   make(Index),
		cache:   cache.New(capacity),
		metrics: NewMetrics(opts.Registerer),
	}

	if err := e.recover(); err != nil {
		file.Close()
		lock.Release(lockF)
		return nil, err
	}

	level.Info(logger).Log("msg", "store opened", "path", opts.Path, "keys", len(e.index))

	return e, nil
}

// recover replays the log from offset 0, applying last-write-wins puts
// and tombstones. The first torn or corrupted record is treated as the
// logical end of file and everything from there on is truncated.
//
// Keys whose expiry has already passed are still indexed: a later
// record in the log may overwrite or delete them, and reads evict them
// lazily.
func (e *Engine) recover() error {
	r, err := e.file.Reader()
	if err != nil {
		return err
	}

	sc := record.NewScanner(r)

	for {
		ent, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isFramingError(err) {
				level.Warn(e.logger).Log("msg", "torn record tail, stopping replay", "offset", sc.ValidOffset(), "reason", err)
				break
			}
			return err
		}

		rec := ent.Rec
		if rec.IsPut() {
			e.index[rec.Key] = Entry{
				PayloadOff: ent.PayloadOff,
				PayloadLen: ent.PayloadLen,
				Checksum:   ent.Checksum,
				Expiry:     rec.ExpiryUnix(),
			}
		} else {
			delete(e.index, rec.Key)
		}
	}

	size, err := e.file.Size()
	if err != nil {
		return err
	}
	if valid := sc.ValidOffset(); valid < size {
		level.Info(e.logger).Log("msg", "truncating torn tail", "from", size, "to", valid)
		if err := e.file.Truncate(valid); err != nil {
			return err
		}
	}

	return nil
}

func isFramingError(err error) bool {
	return errors.Is(err, record.ErrMalformedHeader) ||
		errors.Is(err, record.ErrMalformedFrame) ||
		errors.Is(err, record.ErrChecksumMismatch) ||
		errors.Is(err, record.ErrCorruptRecord)
}

// Put stores value under key. ttlSeconds of 0 means the key never
// expires; a positive ttl sets an absolute expiry of now+ttl.
//
// The record is durable once Put returns: the append is synced to
// stable storage before the index and cache are touched.
func (e *Engine) Put(key, value string, ttlSeconds int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	return e.put(key, value, ttlSeconds)
}

func (e *Engine) put(key, value string, ttlSeconds int64) error {
	if ttlSeconds < 0 {
		return ErrNegativeTTL
	}

	var expiry int64
	if ttlSeconds > 0 {
		expiry = time.Now().Unix() + ttlSeconds
	}

	framed, err := record.Encode(record.NewPut(key, value, expiry))
	if err != nil {
		return err
	}

	off, err := e.file.Append(framed.Data)
	if err != nil {
		return err
	}
	if err := e.sync(); err != nil {
		return err
	}

	e.index[key] = Entry{
		PayloadOff: off + int64(framed.HeaderLen),
		PayloadLen: framed.PayloadLen,
		Checksum:   framed.Checksum,
		Expiry:     expiry,
	}
	e.cache.Insert(key, value)

	e.putCount++
	e.metrics.puts.Inc()

	return nil
}

// Get returns the value stored under key, or ErrKeyNotFound. The first
// read of an expired key evicts it from both index and cache.
func (e *Engine) Get(key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", ErrClosed
	}

	ent, ok := e.lookupLive(key)
	if !ok {
		return "", ErrKeyNotFound
	}

	if value, ok := e.cache.Lookup(key); ok {
		return value, nil
	}

	value, err := e.readValue(key, ent)
	if err != nil {
		return "", err
	}

	e.cache.Insert(key, value)
	return value, nil
}

// lookupLive returns the index entry for key, evicting it first if it
// has expired.
func (e *Engine) lookupLive(key string) (Entry, bool) {
	ent, ok := e.index[key]
	if !ok {
		return Entry{}, false
	}

	if expired(ent.Expiry) {
		delete(e.index, key)
		e.cache.Invalidate(key)
		return Entry{}, false
	}

	return ent, true
}

// readValue reads and verifies key's payload straight from the log.
func (e *Engine) readValue(key string, ent Entry) (string, error) {
	payload, err := e.file.ReadAt(ent.PayloadOff, ent.PayloadLen)
	if err != nil {
		return "", err
	}

	rec, err := record.DecodePayload(payload, ent.Checksum)
	if err != nil {
		return "", errors.Wrapf(ErrDataCorruption, "key %q: %v", key, err)
	}
	if !rec.IsPut() {
		return "", errors.Wrapf(ErrDataCorruption, "key %q: indexed record is not a put", key)
	}

	return rec.ValueString(), nil
}

// Delete appends a tombstone for key, whether or not the key exists, so
// the operation is idempotent with respect to the log. It reports
// whether the key had been live.
func (e *Engine) Delete(key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false, ErrClosed
	}

	_, wasLive := e.lookupLive(key)

	framed, err := record.Encode(record.NewTombstone(key))
	if err != nil {
		return false, err
	}
	if _, err := e.file.Append(framed.Data); err != nil {
		return false, err
	}
	if err := e.sync(); err != nil {
		return false, err
	}

	delete(e.index, key)
	e.cache.Invalidate(key)

	e.deleteCount++
	e.metrics.deletes.Inc()

	return wasLive, nil
}

// TTL rewrites key's record with expiry now+ttlSeconds. A missing or
// expired key is ErrKeyNotFound. The superseded record becomes garbage
// reclaimed by the next Compact.
func (e *Engine) TTL(key string, ttlSeconds int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if ttlSeconds < 0 {
		return ErrNegativeTTL
	}

	ent, ok := e.lookupLive(key)
	if !ok {
		return ErrKeyNotFound
	}

	// Read straight from the log rather than the cache so the rewrite
	// carries exactly the stored bytes.
	value, err := e.readValue(key, ent)
	if err != nil {
		return err
	}

	return e.put(key, value, ttlSeconds)
}

// Compact rewrites the log so it contains exactly one fresh put record
// per live key, atomically replaces the old file, and rebuilds the
// index from the result. Expired keys are dropped. The cache is cleared
// because every payload offset has moved.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	start := time.Now()
	tmpPath := e.file.Path() + ".compact"

	if err := e.writeCompacted(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := e.file.Replace(tmpPath); err != nil {
		return err
	}

	e.index = make(Index)
	if err := e.recover(); err != nil {
		return err
	}
	e.cache.Clear()

	e.lastCompaction = time.Now()
	e.metrics.compactions.Inc()

	level.Info(e.logger).Log("msg", "compaction finished", "keys", len(e.index), "took", time.Since(start))

	return nil
}

// writeCompacted writes one freshly framed put per live key into a
// temporary file and syncs it. Keys are written in sorted order so the
// same live set always compacts to the same bytes.
func (e *Engine) writeCompacted(tmpPath string) error {
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "create compaction file")
	}
	defer tmp.Close()

	keys := e.index.Keys()
	sort.Strings(keys)

	for _, key := range keys {
		ent := e.index[key]
		if expired(ent.Expiry) {
			continue
		}

		payload, err := e.file.ReadAt(ent.PayloadOff, ent.PayloadLen)
		if err != nil {
			return err
		}

		rec, err := record.DecodePayload(payload, ent.Checksum)
		if err != nil {
			return errors.Wrapf(ErrDataCorruption, "key %q: %v", key, err)
		}

		framed, err := record.Encode(rec)
		if err != nil {
			return err
		}
		if _, err := tmp.Write(framed.Data); err != nil {
			return errors.Wrap(err, "write compacted record")
		}
	}

	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync compaction file")
	}

	return nil
}

// Stats is a point-in-time snapshot of the engine.
type Stats struct {
	KeysInIndex    int
	KeysInCache    int
	PutCount       uint64
	DeleteCount    uint64
	FileSizeBytes  int64
	LastCompaction time.Time // zero if never compacted
}

// Stats returns a snapshot of index/cache sizes, operation counters and
// the log's current size.
func (e *Engine) Stats() (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Stats{}, ErrClosed
	}

	size, err := e.file.Size()
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		KeysInIndex:    len(e.index),
		KeysInCache:    e.cache.Len(),
		PutCount:       e.putCount,
		DeleteCount:    e.deleteCount,
		FileSizeBytes:  size,
		LastCompaction: e.lastCompaction,
	}, nil
}

// Close syncs and closes the file handles and releases the store lock.
// Calling Close more than once is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	syncErr := e.file.Sync()
	closeErr := e.file.Close()
	lock.Release(e.lockF)

	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

func (e *Engine) sync() error {
	start := time.Now()
	err := e.file.Sync()
	e.metrics.syncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return errors.Wrap(err, "sync log")
	}
	return nil
}

// expired reports whether an absolute expiry has passed. Zero means no
// expiry; the boundary second counts as expired.
func expired(expiry int64) bool {
	return expiry != 0 && expiry <= time.Now().Unix()
}
