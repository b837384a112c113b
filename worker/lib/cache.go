package lib

import (
	"bytes"
	"encoding/gob"
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/models"
)

type CachedRecord struct {
	Record  models.MailRecord
	Created time.Time
}

// HeaderCache stores parsed records so that engines do not have to read
// and parse every message again on each list query. One database is opened
// per account. Flags and IDs are not meaningful in cached records.
type HeaderCache struct {
	db     *leveldb.DB
	path   string
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
}

// OpenCache opens (or creates) the cache database of an account. When
// cleanSpec is a valid cron specification, entries older than maxAge are
// removed on that schedule, in addition to once at startup.
func OpenCache(dir, account string, maxAge time.Duration, cleanSpec string) (*HeaderCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "cache dir")
	}
	p := path.Join(dir, account)
	db, err := leveldb.OpenFile(p, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed opening cache db")
	}
	c := &HeaderCache{db: db, path: p, maxAge: maxAge, now: time.Now}
	log.Debugf("cache db opened: %s", p)
	if maxAge > 0 {
		if cleanSpec != "" {
			c.cron = cron.New(cron.WithChain(
				cron.Recover(cron.PrintfLogger(log.ErrorLogger()))))
			if _, err := c.cron.AddFunc(cleanSpec, func() { c.Clean() }); err != nil {
				db.Close()
				return nil, errors.Wrapf(err, "cache-clean %q", cleanSpec)
			}
			c.cron.Start()
		}
		go func() {
			defer log.PanicHandler()
			c.Clean()
		}()
	}
	return c, nil
}

func (c *HeaderCache) Put(key string, rec *models.MailRecord) {
	cr := &CachedRecord{Record: *rec, Created: c.now()}
	cr.Record.Flags = 0
	data := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(data).Encode(cr); err != nil {
		log.Errorf("cannot encode record %s: %v", key, err)
		return
	}
	if err := c.db.Put([]byte(key), data.Bytes(), nil); err != nil {
		log.Errorf("cannot write record %s: %v", key, err)
	}
}

// Get returns a copy of the cached record
func (c *HeaderCache) Get(key string) (*models.MailRecord, bool) {
	data, err := c.db.Get([]byte(key), nil)
	if err != nil {
		return nil, false
	}
	cr, err := decodeRecord(data)
	if err != nil {
		log.Errorf("cannot decode cached record %s: %v", key, err)
		return nil, false
	}
	log.Tracef("located cached record %s", key)
	return &cr.Record, true
}

func (c *HeaderCache) Delete(key string) {
	if err := c.db.Delete([]byte(key), nil); err != nil {
		log.Errorf("cannot delete cached record %s: %v", key, err)
	}
}

// DeletePrefix drops every record whose key starts with prefix. IMAP
// engines use it when the UIDVALIDITY of a mailbox changes.
func (c *HeaderCache) DeletePrefix(prefix string) int {
	batch := new(leveldb.Batch)
	iter := c.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := c.db.Write(batch, nil); err != nil {
		log.Errorf("cannot delete %s*: %v", prefix, err)
		return 0
	}
	return batch.Len()
}

func decodeRecord(data []byte) (*CachedRecord, error) {
	cr := &CachedRecord{}
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(cr)
	return cr, err
}

// Clean removes expired entries
func (c *HeaderCache) Clean() (removed int, scanned int) {
	start := time.Now()
	iter := c.db.NewIterator(nil, nil)
	for iter.Next() {
		scanned++
		cr, err := decodeRecord(iter.Value())
		if err != nil || cr.Created.Add(c.maxAge).Before(c.now()) {
			if err := c.db.Delete(iter.Key(), nil); err != nil {
				log.Errorf("cannot clean database %s: %v", c.path, err)
				continue
			}
			removed++
		}
	}
	iter.Release()
	log.Debugf("%s: removed %d/%d expired entries in %s",
		c.path, removed, scanned, time.Since(start))
	return removed, scanned
}

func (c *HeaderCache) Close() error {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
	return c.db.Close()
}
