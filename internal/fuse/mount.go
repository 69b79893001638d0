package fuse

import (
	"time"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountConfig configures a mount of a FileSystem.
type MountConfig struct {
	MountPoint string
	AllowOther bool
	Debug      bool
	FSName     string
}

// DefaultMountConfig returns sane defaults for mounting at mountPoint.
func DefaultMountConfig(mountPoint string) *MountConfig {
	return &MountConfig{
		MountPoint: mountPoint,
		FSName:     "imagecache",
	}
}

// MountManager mounts a FileSystem at a path and manages its lifecycle.
type MountManager struct {
	fsys   *FileSystem
	cfg    *MountConfig
	server *fuse.Server
}

// NewMountManager builds a MountManager for fsys using cfg.
func NewMountManager(fsys *FileSystem, cfg *MountConfig) *MountManager {
	if cfg == nil {
		cfg = &MountConfig{FSName: "imagecache"}
	}
	return &MountManager{fsys: fsys, cfg: cfg}
}

// Mount performs the FUSE mount. The filesystem is always read-only:
// variants reach it only through Register, never through a write path.
func (m *MountManager) Mount() error {
	opts := &gofs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther:    m.cfg.AllowOther,
			Debug:         m.cfg.Debug,
			FsName:        m.cfg.FSName,
			Name:          "imagecache",
			DisableXAttrs: true,
		},
		EntryTimeout: durationPtr(time.Second),
		AttrTimeout:  durationPtr(time.Second),
	}

	server, err := gofs.Mount(m.cfg.MountPoint, m.fsys.Root(), opts)
	if err != nil {
		return err
	}
	m.server = server
	return nil
}

// Unmount tears down the mount. Safe to call if Mount was never called or
// already failed.
func (m *MountManager) Unmount() error {
	if m.server == nil {
		return nil
	}
	return m.server.Unmount()
}

// Wait blocks until the mount is torn down, e.g. by Unmount or a signal
// handled elsewhere.
func (m *MountManager) Wait() {
	if m.server != nil {
		m.server.Wait()
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }
