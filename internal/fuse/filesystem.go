package fuse

import (
	"context"
	"io"
	"sync"
	"syscall"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objectfs/imagecache/internal/cache"
)

// FileSystem is a read-only directory of registered variants backed by a
// cache.Facade. It holds no POSIX path-derivation logic: every path it
// serves must have been registered with Register by whatever component
// decides which operation lists are exposed (typically an image-serving
// host translating request paths into OperationLists before the first
// request for them arrives).
type FileSystem struct {
	facade *cache.Facade

	mu      sync.RWMutex
	entries map[string]cache.OperationList
}

// New builds a FileSystem serving variants out of facade.
func New(facade *cache.Facade) *FileSystem {
	return &FileSystem{
		facade:  facade,
		entries: make(map[string]cache.OperationList),
	}
}

// Register exposes ol at the given top-level file name. Overwrites any
// prior registration under the same name.
func (f *FileSystem) Register(name string, ol cache.OperationList) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[name] = ol
}

// Unregister removes a name from the directory listing.
func (f *FileSystem) Unregister(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, name)
}

func (f *FileSystem) lookup(name string) (cache.OperationList, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ol, ok := f.entries[name]
	return ol, ok
}

func (f *FileSystem) list() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	return names
}

// Root returns the inode embedder to pass to fs.Mount.
func (f *FileSystem) Root() gofs.InodeEmbedder {
	return &rootInode{fsys: f}
}

// rootInode is the single flat directory listing every registered variant.
type rootInode struct {
	gofs.Inode
	fsys *FileSystem
}

var (
	_ gofs.NodeLookuper  = (*rootInode)(nil)
	_ gofs.NodeReaddirer = (*rootInode)(nil)
)

func (r *rootInode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	ol, ok := r.fsys.lookup(name)
	if !ok {
		return nil, syscall.ENOENT
	}
	out.Mode = fuse.S_IFREG | 0o444
	child := &variantInode{fsys: r.fsys, ol: ol}
	return r.NewInode(ctx, child, gofs.StableAttr{Mode: fuse.S_IFREG}), 0
}

func (r *rootInode) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	names := r.fsys.list()
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{Name: name, Mode: fuse.S_IFREG})
	}
	return gofs.NewListDirStream(entries), 0
}

// variantInode serves the bytes of one registered variant. It reads the
// whole variant into memory on Open rather than streaming, since variants
// are cache artifacts expected to be small enough to hold entirely — the
// same assumption the cache core's VariantReader/VariantWriter pair makes.
type variantInode struct {
	gofs.Inode
	fsys *FileSystem
	ol   cache.OperationList
}

var (
	_ gofs.NodeOpener    = (*variantInode)(nil)
	_ gofs.NodeGetattrer = (*variantInode)(nil)
)

func (v *variantInode) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFREG | 0o444
	if f != nil {
		if handle, ok := f.(*variantHandle); ok {
			out.Size = uint64(len(handle.data))
		}
	}
	return 0
}

func (v *variantInode) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	var stat cache.StatResult
	r, ok := v.fsys.facade.NewVariantInputStream(v.ol, &stat)
	if !ok {
		return nil, 0, syscall.ENOENT
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, syscall.EIO
	}
	return &variantHandle{data: data}, fuse.FOPEN_KEEP_CACHE, 0
}

type variantHandle struct {
	data []byte
}

var _ gofs.FileReader = (*variantHandle)(nil)

func (h *variantHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 || off > int64(len(h.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return fuse.ReadResultData(h.data[off:end]), 0
}
