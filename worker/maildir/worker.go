// Package maildir is a mail engine over a tree of maildirs. External
// changes to the files are picked up with a file system watcher.
package maildir

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/lib/watchers"
	"git.sr.ht/~rjarry/mlsync/lib/xdg"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/handlers"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func init() {
	handlers.RegisterEngineFactory("maildir", NewWorker)
	handlers.RegisterEngineFactory("maildirpp", NewMaildirppWorker)
}

const defaultDebounce = 200 * time.Millisecond

// A Worker serves the mails of a group of maildirs. Every mail is parsed
// once at Connect (or taken from the header cache) and kept in an index.
type Worker struct {
	sync.Mutex
	acct      *config.AccountConfig
	c         *Container
	index     map[models.MailID]*models.MailRecord
	mailboxes map[string]models.MailboxType
	cache     *lib.HeaderCache
	watcher   watchers.FSWatcher
	watched   map[string]string
	debounce  time.Duration
	feed      *lib.EventFeed
	log       log.Logger
}

// NewWorker creates an engine for a maildir:// account
func NewWorker(acct *config.AccountConfig) (types.Engine, error) {
	return newWorker(acct, false)
}

// NewMaildirppWorker creates an engine for a maildirpp:// account
func NewMaildirppWorker(acct *config.AccountConfig) (types.Engine, error) {
	return newWorker(acct, true)
}

func newWorker(acct *config.AccountConfig, maildirpp bool) (*Worker, error) {
	root, err := rootDir(acct.Source)
	if err != nil {
		return nil, err
	}
	c, err := NewContainer(root, maildirpp)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		acct:      acct,
		c:         c,
		index:     make(map[models.MailID]*models.MailRecord),
		mailboxes: make(map[string]models.MailboxType),
		watched:   make(map[string]string),
		debounce:  defaultDebounce,
		feed:      lib.NewEventFeed(),
		log:       log.NewLogger("maildir/"+acct.Name, 3),
	}
	if d, ok := acct.Params["debounce"]; ok {
		w.debounce, err = time.ParseDuration(d)
		if err != nil {
			return nil, fmt.Errorf("debounce: %w", err)
		}
	}
	return w, nil
}

// rootDir resolves maildir:///abs/path and maildir://~/rel/path
func rootDir(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", err
	}
	dir := u.Path
	if u.Host == "~" {
		dir = xdg.ExpandHome("~", u.Path)
	} else if u.Host != "" {
		dir = filepath.Join(u.Host, u.Path)
	}
	if dir == "" {
		return "", fmt.Errorf("could not resolve maildir from URL '%s'", source)
	}
	return dir, nil
}

func (w *Worker) mailboxType(folder string) models.MailboxType {
	switch folder {
	case w.acct.Trash:
		return models.Trash
	case w.acct.Spam:
		return models.Spam
	}
	return models.GuessMailboxType(folder)
}

func (w *Worker) Connect(ctx context.Context) error {
	if w.acct.CacheHeaders && w.acct.CacheDir != "" {
		cache, err := lib.OpenCache(w.acct.CacheDir, w.acct.Name,
			w.acct.CacheMaxAge, w.acct.CacheClean)
		if err != nil {
			w.log.Warnf("header cache disabled: %v", err)
		} else {
			w.cache = cache
		}
	}
	watcher, err := watchers.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "could not create file system watcher")
	}

	w.Lock()
	defer w.Unlock()
	w.watcher = watcher
	folders, err := w.c.ListFolders()
	if err != nil {
		return errors.Wrap(err, "list folders")
	}
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.mailboxes[folder] = w.mailboxType(folder)
		if _, err := w.scan(folder); err != nil {
			return err
		}
		dir := string(w.c.Dir(folder))
		for _, sub := range []string{"new", "cur"} {
			p := filepath.Join(dir, sub)
			if err := watcher.Add(p); err != nil {
				w.log.Warnf("cannot watch %s: %v", p, err)
				continue
			}
			w.watched[p] = folder
		}
	}
	w.log.Debugf("%d mails in %d folders", len(w.index), len(folders))
	go w.watch(watchers.Debounce(watcher.Events(), w.debounce))
	return nil
}

func (w *Worker) watch(batches <-chan []string) {
	defer log.PanicHandler()
	for paths := range batches {
		w.Lock()
		folders := make(map[string]bool)
		for _, p := range paths {
			if folder, ok := w.watched[filepath.Dir(p)]; ok {
				folders[folder] = true
			} else if folder, ok := w.watched[p]; ok {
				folders[folder] = true
			}
		}
		for folder := range folders {
			w.rescan(folder)
		}
		w.Unlock()
	}
}

// scan brings the index of folder in line with its files. New files are
// parsed and indexed. It returns what changed.
func (w *Worker) scan(folder string) (*changes, error) {
	dir := w.c.Dir(folder)
	if _, err := dir.Unseen(); err != nil {
		w.log.Warnf("%s: cannot move new mails to cur: %v", folder, err)
	}
	keys, err := dir.Keys()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get keys for %s", folder)
	}
	ch := &changes{flags: make(map[flagChange][]models.MailID)}
	seen := make(map[models.MailID]bool, len(keys))
	for _, key := range keys {
		id := w.c.ID(folder, key)
		seen[id] = true
		msg := Message{dir: dir, folder: folder, key: key, id: id}
		rec, ok := w.index[id]
		if !ok {
			rec, err = w.readRecord(msg)
			if err != nil {
				w.log.Errorf("%s/%s: %v", folder, key, err)
				w.c.Forget(id)
				continue
			}
			w.index[id] = rec
			ch.added = append(ch.added, id)
			continue
		}
		flags, err := msg.ModelFlags()
		if err != nil {
			w.log.Warnf("%s/%s: %v", folder, key, err)
			continue
		}
		ch.flagDiff(id, rec.Flags, flags)
		rec.Flags = flags
	}
	for id, rec := range w.index {
		if rec.MailboxID == folder && !seen[id] {
			delete(w.index, id)
			w.c.Forget(id)
			ch.removed = append(ch.removed, id)
		}
	}
	return ch, nil
}

func (w *Worker) rescan(folder string) {
	if _, ok := w.mailboxes[folder]; !ok {
		return
	}
	dir := string(w.c.Dir(folder))
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		w.dropFolder(folder)
		return
	}
	ch, err := w.scan(folder)
	if err != nil {
		w.log.Errorf("rescan: %v", err)
		return
	}
	typ := w.mailboxes[folder]
	if len(ch.removed) > 0 {
		w.post(&types.Event{
			Kind: types.MailDeleted, MailboxID: folder, MailboxType: typ,
			MailIDs: ch.removed,
		})
	}
	if len(ch.added) > 0 {
		w.post(&types.Event{
			Kind: types.MailAdded, MailboxID: folder, MailboxType: typ,
			MailIDs: ch.added,
		})
	}
	for fc, ids := range ch.flags {
		w.post(&types.Event{
			Kind: types.FlagChanged, MailboxID: folder, MailboxType: typ,
			MailIDs: ids, Flag: fc.flag, Value: fc.value,
		})
	}
}

// dropFolder forgets a folder removed from the disk
func (w *Worker) dropFolder(folder string) {
	for id, rec := range w.index {
		if rec.MailboxID == folder {
			delete(w.index, id)
			w.c.Forget(id)
		}
	}
	for p, f := range w.watched {
		if f == folder {
			// the kernel already dropped the watches of deleted directories
			_ = w.watcher.Remove(p)
			delete(w.watched, p)
		}
	}
	typ := w.mailboxes[folder]
	delete(w.mailboxes, folder)
	w.log.Infof("folder %s was removed", folder)
	w.post(&types.Event{
		Kind: types.MailboxDeleted, MailboxID: folder, MailboxType: typ,
	})
}

type flagChange struct {
	flag  models.Flags
	value bool
}

type changes struct {
	added   []models.MailID
	removed []models.MailID
	flags   map[flagChange][]models.MailID
}

func (ch *changes) flagDiff(id models.MailID, old, new models.Flags) {
	diff := old ^ new
	for flag := models.Flags(1); diff != 0; flag <<= 1 {
		if diff&flag == 0 {
			continue
		}
		diff &^= flag
		fc := flagChange{flag: flag, value: new.Has(flag)}
		ch.flags[fc] = append(ch.flags[fc], id)
	}
}

// readRecord parses a message or takes it from the header cache. Flags,
// size and mailbox always come from the file itself.
func (w *Worker) readRecord(msg Message) (*models.MailRecord, error) {
	var rec *models.MailRecord
	if w.cache != nil {
		rec, _ = w.cache.Get(msg.key)
	}
	if rec == nil {
		var err error
		rec, err = lib.MailRecord(msg, w.acct.ToMe)
		if err != nil {
			return nil, err
		}
		if w.cache != nil {
			w.cache.Put(msg.key, rec)
		}
	} else {
		flags, err := msg.ModelFlags()
		if err != nil {
			return nil, err
		}
		rec.Flags = flags
	}
	size, err := msg.Size()
	if err != nil {
		return nil, err
	}
	rec.ID = msg.id
	rec.Size = size
	rec.AccountID = w.acct.Name
	rec.MailboxID = msg.folder
	rec.MailboxType = w.mailboxes[msg.folder]
	rec.SaveStatus = lib.SaveStatus(rec)
	return rec, nil
}

func (w *Worker) post(ev *types.Event) {
	ev.AccountID = w.acct.Name
	w.feed.Post(ev)
}

func (w *Worker) Close() error {
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.feed.Close()
	if w.cache != nil {
		if cerr := w.cache.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (w *Worker) Events() <-chan *types.Event {
	return w.feed.Events()
}

func (w *Worker) Mailboxes(ctx context.Context) (map[string]models.MailboxType, error) {
	w.Lock()
	defer w.Unlock()
	mailboxes := make(map[string]models.MailboxType, len(w.mailboxes))
	for name, typ := range w.mailboxes {
		mailboxes[name] = typ
	}
	return mailboxes, nil
}

func (w *Worker) GetMailList(ctx context.Context, filter *models.Filter,
	mode sort.Mode, start, count int,
) ([]*models.MailRecord, int, error) {
	w.Lock()
	defer w.Unlock()
	recs, total := w.search(filter, mode, start, count)
	return recs, total, ctx.Err()
}

func (w *Worker) GetMailByID(ctx context.Context, id models.MailID) (*models.MailRecord, error) {
	w.Lock()
	defer w.Unlock()
	rec, ok := w.index[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return rec.Copy(), nil
}

// group splits ids by folder, unknown IDs are skipped
func (w *Worker) group(ids []models.MailID) map[string][]models.MailID {
	groups := make(map[string][]models.MailID)
	for _, id := range ids {
		if rec, ok := w.index[id]; ok {
			groups[rec.MailboxID] = append(groups[rec.MailboxID], id)
		}
	}
	return groups
}

func (w *Worker) MoveMail(ctx context.Context, ids []models.MailID, dest string) error {
	w.Lock()
	defer w.Unlock()
	return w.move(ctx, ids, dest)
}

func (w *Worker) move(ctx context.Context, ids []models.MailID, dest string) error {
	destType, ok := w.mailboxes[dest]
	if !ok {
		if _, err := w.c.Create(dest); err != nil {
			return err
		}
		destType = w.mailboxType(dest)
		w.mailboxes[dest] = destType
		w.watchFolder(dest)
	}
	for src, group := range w.group(ids) {
		if src == dest {
			continue
		}
		var moved []models.MailID
		var err error
		for _, id := range group {
			if err = ctx.Err(); err != nil {
				break
			}
			var key string
			key, err = w.c.Move(id, dest)
			if err != nil {
				err = errors.Wrapf(err, "move %d to %s", id, dest)
				break
			}
			rec := w.index[id]
			rec.MailboxID = dest
			rec.MailboxType = destType
			rec.SaveStatus = lib.SaveStatus(rec)
			if w.cache != nil {
				w.cache.Put(key, rec)
			}
			moved = append(moved, id)
		}
		if len(moved) > 0 {
			w.post(&types.Event{
				Kind:            types.MailMoved,
				MailboxID:       src,
				MailboxType:     w.mailboxes[src],
				DestMailboxID:   dest,
				DestMailboxType: destType,
				MailIDs:         moved,
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) watchFolder(folder string) {
	if w.watcher == nil {
		return
	}
	for _, sub := range []string{"new", "cur"} {
		p := filepath.Join(string(w.c.Dir(folder)), sub)
		if err := w.watcher.Add(p); err == nil {
			w.watched[p] = folder
		}
	}
}

func (w *Worker) DeleteMail(ctx context.Context, ids []models.MailID, opt models.DeleteOption) error {
	w.Lock()
	defer w.Unlock()
	var expunge, trash []models.MailID
	for _, id := range ids {
		rec, ok := w.index[id]
		switch {
		case !ok:
			continue
		case opt == models.Expunge || rec.MailboxID == w.acct.Trash:
			expunge = append(expunge, id)
		default:
			trash = append(trash, id)
		}
	}
	if len(trash) > 0 {
		if err := w.move(ctx, trash, w.acct.Trash); err != nil {
			return err
		}
	}
	for folder, group := range w.group(expunge) {
		var removed []models.MailID
		var err error
		for _, id := range group {
			var msg *Message
			msg, err = w.c.Message(id)
			if err == nil {
				err = msg.Remove()
			}
			if err != nil {
				err = errors.Wrapf(err, "delete %d", id)
				break
			}
			delete(w.index, id)
			w.c.Forget(id)
			if w.cache != nil {
				w.cache.Delete(msg.key)
			}
			removed = append(removed, id)
		}
		if len(removed) > 0 {
			w.post(&types.Event{
				Kind:        types.MailDeleted,
				MailboxID:   folder,
				MailboxType: w.mailboxes[folder],
				MailIDs:     removed,
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) SetFlag(ctx context.Context, ids []models.MailID,
	flag models.Flags, value bool,
) error {
	w.Lock()
	defer w.Unlock()
	for folder, group := range w.group(ids) {
		var changed []models.MailID
		var err error
		for _, id := range group {
			rec := w.index[id]
			if rec.Flags.Has(flag) == value {
				continue
			}
			var msg *Message
			msg, err = w.c.Message(id)
			if err != nil {
				break
			}
			flags := rec.Flags.Set(flag, value)
			if err = msg.SetFlags(flags); err != nil {
				err = errors.Wrapf(err, "set %s on %d", flag, id)
				break
			}
			rec.Flags = flags
			changed = append(changed, id)
		}
		if len(changed) > 0 {
			w.post(&types.Event{
				Kind:        types.FlagChanged,
				MailboxID:   folder,
				MailboxType: w.mailboxes[folder],
				MailIDs:     changed,
				Flag:        flag,
				Value:       value,
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}
