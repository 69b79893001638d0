package cache

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/objectfs/imagecache/pkg/errors"
)

const (
	infoSubdir  = "info"
	imageSubdir = "image"
)

// FilesystemBackend is an on-disk cache for infos and variants, sharded by
// MD5 of the identifier, with atomic rename-based writes, per-identifier
// locking, and TTL-based invalidation. It implements both InfoBackend and
// VariantBackend.
type FilesystemBackend struct {
	root            string
	depth           int
	segLen          int
	infoTTL         time.Duration
	variantTTL      time.Duration
	minCleanableAge time.Duration

	logger    *slog.Logger
	observers *ObserverRegistry
	submitter TaskSubmitter

	infoLocks *shardLocks

	// coordination state: guards beingWritten (keyed by destination path),
	// infosBeingPurged (keyed by Identifier), and the global purge flag.
	coordMu          sync.Mutex
	coordCond        *sync.Cond
	beingWritten     map[string]struct{}
	infosBeingPurged map[Identifier]struct{}
	variantsPurging  int
	purging          bool
}

// FilesystemBackendConfig configures a FilesystemBackend.
type FilesystemBackendConfig struct {
	Root            string
	Depth           int
	SegmentLength   int
	InfoTTL         time.Duration
	VariantTTL      time.Duration
	MinCleanableAge time.Duration
}

// NewFilesystemBackend constructs a FilesystemBackend rooted at cfg.Root.
// Call Initialize before use.
func NewFilesystemBackend(cfg FilesystemBackendConfig, submitter TaskSubmitter, observers *ObserverRegistry) *FilesystemBackend {
	if observers == nil {
		observers = NewObserverRegistry()
	}
	depth := cfg.Depth
	if depth <= 0 {
		depth = 3
	}
	segLen := cfg.SegmentLength
	if segLen <= 0 {
		segLen = 2
	}

	b := &FilesystemBackend{
		root:             cfg.Root,
		depth:            depth,
		segLen:           segLen,
		infoTTL:          cfg.InfoTTL,
		variantTTL:       cfg.VariantTTL,
		minCleanableAge:  cfg.MinCleanableAge,
		logger:           slog.Default().With("component", "filesystem-backend"),
		observers:        observers,
		submitter:        submitter,
		infoLocks:        newShardLocks(),
		beingWritten:     make(map[string]struct{}),
		infosBeingPurged: make(map[Identifier]struct{}),
	}
	b.coordCond = sync.NewCond(&b.coordMu)
	return b
}

// Initialize creates the root directory tree if absent.
func (b *FilesystemBackend) Initialize() error {
	if b.root == "" {
		return errFatalNoRoot
	}
	if err := os.MkdirAll(filepath.Join(b.root, infoSubdir), 0o750); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(b.root, imageSubdir), 0o750); err != nil {
		return err
	}
	return nil
}

// Shutdown is a no-op: the filesystem backend holds no background
// resources beyond the files it has written.
func (b *FilesystemBackend) Shutdown() {}

var errFatalNoRoot = fsFatalError("filesystem cache root path not set")

type fsFatalError string

func (e fsFatalError) Error() string { return string(e) }

// shardSegments splits the first depth*segLen hex characters of hash into
// depth segments of segLen characters each.
func shardSegments(hash string, depth, segLen int) []string {
	segs := make([]string, 0, depth)
	need := depth * segLen
	if need > len(hash) {
		need = len(hash)
	}
	for i := 0; i+segLen <= need; i += segLen {
		segs = append(segs, hash[i:i+segLen])
	}
	return segs
}

func (b *FilesystemBackend) shardDir(subdir string, id Identifier) string {
	segs := shardSegments(id.MD5Hex(), b.depth, b.segLen)
	parts := append([]string{b.root, subdir}, segs...)
	return filepath.Join(parts...)
}

func (b *FilesystemBackend) infoFile(id Identifier) string {
	return filepath.Join(b.shardDir(infoSubdir, id), id.MD5Hex()+".json")
}

func (b *FilesystemBackend) variantFile(ol OperationList) string {
	return filepath.Join(b.shardDir(imageSubdir, ol.Identifier()), ol.Filename())
}

func tempName(final string) string {
	return final + "_" + uuid.NewString() + ".tmp"
}

// acquireWrite registers dest as being written; returns false if another
// writer already holds it.
func (b *FilesystemBackend) acquireWrite(dest string) bool {
	b.coordMu.Lock()
	defer b.coordMu.Unlock()
	if _, ok := b.beingWritten[dest]; ok {
		return false
	}
	b.beingWritten[dest] = struct{}{}
	return true
}

func (b *FilesystemBackend) releaseWrite(dest string) {
	b.coordMu.Lock()
	delete(b.beingWritten, dest)
	b.coordMu.Unlock()
	b.coordCond.Broadcast()
}

// FetchInfo reads infoFile(id) under the per-id read lock. An expired
// entry triggers an asynchronous delete and reports a miss.
func (b *FilesystemBackend) FetchInfo(id Identifier) (Info, bool) {
	path := b.infoFile(id)

	b.infoLocks.RLock(id)
	data, statInfo, err := readFileWithStat(path)
	b.infoLocks.RUnlock(id)

	if err != nil {
		return Info{}, false
	}

	if b.expired(statInfo.ModTime(), b.infoTTL) {
		b.asyncDelete(path)
		return Info{}, false
	}

	info, err := InfoFromJSON(data)
	if err != nil {
		cerr := errors.NewError(errors.ErrCodeCorruptArtifact, "decode info file").
			WithComponent("filesystem-backend").WithOperation("FetchInfo").
			WithContext("path", path).WithCause(err)
		b.logger.Warn("corrupt info file, treating as miss", "err", cerr)
		b.asyncDelete(path)
		return Info{}, false
	}
	if info.SerializedAt == nil {
		t := statInfo.ModTime()
		info.SerializedAt = &t
	}
	return info, true
}

// Put serializes info to a temp file under the per-id write lock, then
// renames it to infoFile(id).
func (b *FilesystemBackend) Put(id Identifier, info Info) error {
	data, err := info.ToJSON()
	if err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "encode info").
			WithComponent("filesystem-backend").WithOperation("Put").WithCause(err)
	}

	dest := b.infoFile(id)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil && !os.IsExist(err) {
		return errors.NewError(errors.ErrCodeStorageWrite, "create info directory").
			WithComponent("filesystem-backend").WithOperation("Put").WithCause(err)
	}

	tmp := tempName(dest)

	b.infoLocks.Lock(id)
	defer b.infoLocks.Unlock(id)

	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "write info temp file").
			WithComponent("filesystem-backend").WithOperation("Put").WithCause(err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return errors.NewError(errors.ErrCodeStorageWrite, "commit info file").
			WithComponent("filesystem-backend").WithOperation("Put").WithCause(err)
	}
	return nil
}

// NewVariantInputStream opens variantFile(ol) if present and unexpired,
// filling stat.LastModified from the file's mtime.
func (b *FilesystemBackend) NewVariantInputStream(ol OperationList, stat *StatResult) (VariantReader, bool) {
	path := b.variantFile(ol)

	statInfo, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if b.expired(statInfo.ModTime(), b.variantTTL) {
		b.asyncDelete(path)
		return nil, false
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			// A concurrent writer may hold an exclusive handle on some
			// platforms; treat as a miss rather than surfacing an error.
			return nil, false
		}
		return nil, false
	}

	if stat != nil {
		stat.LastModified = statInfo.ModTime()
	}
	return f, true
}

// fsVariantWriter streams bytes to a sibling temp file and commits or
// discards it at Close.
type fsVariantWriter struct {
	backend *FilesystemBackend
	ol      OperationList
	dest    string
	tmp     string
	file    *os.File
	noop    bool
}

func (w *fsVariantWriter) Write(p []byte) (int, error) {
	if w.noop {
		return len(p), nil
	}
	return w.file.Write(p)
}

func (w *fsVariantWriter) Close(complete bool) error {
	if w.noop {
		return nil
	}
	defer w.backend.releaseWrite(w.dest)

	closeErr := w.file.Close()
	if !complete {
		_ = os.Remove(w.tmp)
		if closeErr != nil {
			return errors.NewError(errors.ErrCodeStorageWrite, "close variant temp file").
				WithComponent("filesystem-backend").WithOperation("Close").WithCause(closeErr)
		}
		return nil
	}
	if closeErr != nil {
		_ = os.Remove(w.tmp)
		return errors.NewError(errors.ErrCodeStorageWrite, "close variant temp file").
			WithComponent("filesystem-backend").WithOperation("Close").WithCause(closeErr)
	}
	if err := os.Rename(w.tmp, w.dest); err != nil {
		_ = os.Remove(w.tmp)
		return errors.NewError(errors.ErrCodeStorageWrite, "commit variant file").
			WithComponent("filesystem-backend").WithOperation("Close").WithCause(err)
	}

	w.backend.observers.Notify(w.ol)
	return nil
}

// noopVariantWriter discards all writes; returned to the second and later
// concurrent openers of the same destination.
type noopVariantWriter struct{}

func (noopVariantWriter) Write(p []byte) (int, error) { return len(p), nil }
func (noopVariantWriter) Close(bool) error            { return nil }

// NewVariantOutputStream returns a completable sink writing to a sibling
// temp file. A second concurrent opener for the same destination gets a
// no-op sink instead of a real file handle.
func (b *FilesystemBackend) NewVariantOutputStream(ol OperationList) VariantWriter {
	dest := b.variantFile(ol)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil && !os.IsExist(err) {
		b.logger.Warn("mkdir failed for variant write", "dir", dir, "err", err)
		return noopVariantWriter{}
	}

	if !b.acquireWrite(dest) {
		cerr := errors.NewError(errors.ErrCodeConcurrentWrite, "variant already being written").
			WithComponent("filesystem-backend").WithOperation("NewVariantOutputStream").
			WithContext("dest", dest)
		b.logger.Debug("concurrent variant writer, returning no-op sink", "err", cerr)
		return noopVariantWriter{}
	}

	tmp := tempName(dest)
	f, err := os.Create(tmp)
	if err != nil {
		b.releaseWrite(dest)
		b.logger.Warn("create temp file failed", "path", tmp, "err", err)
		return noopVariantWriter{}
	}

	return &fsVariantWriter{backend: b, ol: ol, dest: dest, tmp: tmp, file: f}
}

// EvictVariant deletes the one variant file for ol, skipping (and
// returning promptly) if a global purge is in progress. Concurrent
// EvictVariant calls for the same opList do not wait for each other; each
// deletes the file best-effort.
func (b *FilesystemBackend) EvictVariant(ol OperationList) {
	b.coordMu.Lock()
	if b.purging {
		b.coordMu.Unlock()
		return
	}
	b.variantsPurging++
	b.coordMu.Unlock()

	path := b.variantFile(ol)
	b.bestEffortDelete(path)

	b.coordMu.Lock()
	b.variantsPurging--
	b.coordMu.Unlock()
	b.coordCond.Broadcast()
}

// Evict deletes infoFile(id) and every variant file under id's shard
// directory whose filename begins with md5(id). Serialized against
// concurrent global purges (skipped while one is in progress) and against
// itself per-id via the infosBeingPurged set with a condition-variable
// wait.
func (b *FilesystemBackend) Evict(id Identifier) {
	b.coordMu.Lock()
	for {
		if b.purging {
			b.coordMu.Unlock()
			return
		}
		if _, already := b.infosBeingPurged[id]; !already {
			break
		}
		b.coordCond.Wait()
	}
	b.infosBeingPurged[id] = struct{}{}
	b.coordMu.Unlock()

	b.bestEffortDelete(b.infoFile(id))

	shardDir := b.shardDir(imageSubdir, id)
	prefix := id.MD5Hex()
	entries, err := os.ReadDir(shardDir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.HasPrefix(e.Name(), prefix) {
				b.bestEffortDelete(filepath.Join(shardDir, e.Name()))
			}
		}
	}

	b.coordMu.Lock()
	delete(b.infosBeingPurged, id)
	b.coordMu.Unlock()
	b.coordCond.Broadcast()
}

// EvictInfos walks the info subtree and deletes every ".json" file.
func (b *FilesystemBackend) EvictInfos() {
	root := filepath.Join(b.root, infoSubdir)
	b.walkAndDelete(root, func(path string, d os.DirEntry) bool {
		return !d.IsDir() && strings.HasSuffix(d.Name(), ".json")
	})
}

// EvictInvalid walks the whole tree and deletes every expired regular
// file except temp (".tmp") files, holding the global-purge flag for its duration and waiting for
// in-flight variant purges to finish first.
func (b *FilesystemBackend) EvictInvalid() {
	b.beginGlobalPurge()
	defer b.endGlobalPurge()

	b.walkAndDelete(b.root, func(path string, d os.DirEntry) bool {
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return false
		}
		ttl := b.variantTTL
		if strings.Contains(path, infoSubdir+string(filepath.Separator)) {
			ttl = b.infoTTL
		}
		info, err := d.Info()
		if err != nil {
			return false
		}
		return b.expired(info.ModTime(), ttl)
	})
}

// Purge walks the tree and deletes every regular file and empty
// subdirectory below, but excluding, the root. Same coordination as
// EvictInvalid.
func (b *FilesystemBackend) Purge() {
	b.beginGlobalPurge()
	defer b.endGlobalPurge()

	b.walkAndDelete(b.root, func(path string, d os.DirEntry) bool {
		return !d.IsDir()
	})
	b.removeEmptyDirs(b.root)
}

// CleanUp deletes temp files older than minCleanableAge and zero-byte
// stray files.
func (b *FilesystemBackend) CleanUp() {
	b.walkAndDelete(b.root, func(path string, d os.DirEntry) bool {
		if d.IsDir() {
			return false
		}
		info, err := d.Info()
		if err != nil {
			return false
		}
		if strings.HasSuffix(d.Name(), ".tmp") {
			return time.Since(info.ModTime()) >= b.minCleanableAge
		}
		return info.Size() == 0
	})
}

func (b *FilesystemBackend) beginGlobalPurge() {
	b.coordMu.Lock()
	for b.variantsPurging > 0 {
		b.coordCond.Wait()
	}
	b.purging = true
	b.coordMu.Unlock()
}

func (b *FilesystemBackend) endGlobalPurge() {
	b.coordMu.Lock()
	b.purging = false
	b.coordMu.Unlock()
	b.coordCond.Broadcast()
}

func (b *FilesystemBackend) walkAndDelete(root string, match func(path string, d os.DirEntry) bool) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			b.logger.Warn("walk error", "path", path, "err", err)
			return nil
		}
		if path == root {
			return nil
		}
		if match(path, d) {
			b.bestEffortDelete(path)
		}
		return nil
	})
}

func (b *FilesystemBackend) removeEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
}

func (b *FilesystemBackend) bestEffortDelete(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		b.logger.Warn("delete failed", "path", path, "err", err)
	}
}

func (b *FilesystemBackend) asyncDelete(path string) {
	task := func() { b.bestEffortDelete(path) }
	if b.submitter != nil {
		b.submitter.Submit(task)
		return
	}
	task()
}

func (b *FilesystemBackend) expired(modTime time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return time.Since(modTime) > ttl
}

func readFileWithStat(path string) ([]byte, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	statInfo, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, statInfo, nil
}
