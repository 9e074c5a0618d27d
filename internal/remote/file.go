package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/illarion/dekvault/internal/security"
	"github.com/illarion/dekvault/internal/storage"
)

const (
	filePerm = 0600
	dirPerm  = 0700
)

// File stores bundles as JSON files under a directory, typically a synced
// or network-mounted folder. Files are sharded by the first byte of the key.
type File struct {
	root *security.PathValidator
}

// NewFile opens a file store rooted at dir
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, fmt.Errorf("file backend requires a directory")
	}
	root, err := security.New(dir, dirPerm)
	if err != nil {
		return nil, unavailable("open", err)
	}
	return &File{root: root}, nil
}

func (f *File) path(identity string) (shard, path string, err error) {
	key, err := bundleKey(identity)
	if err != nil {
		return "", "", err
	}
	return key[:2], key[:2] + "/" + key + ".json", nil
}

func (f *File) Get(ctx context.Context, identity string) (*storage.KeyBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, path, err := f.path(identity)
	if err != nil {
		return nil, err
	}

	data, err := f.root.ReadFileInRoot(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("read", err)
	}
	if len(data) > maxBundleSize {
		return nil, fmt.Errorf("%w: bundle too large", ErrUnavailable)
	}
	return decode(data)
}

func (f *File) Put(ctx context.Context, identity string, bundle *storage.KeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard, path, err := f.path(identity)
	if err != nil {
		return err
	}
	data, err := bundle.Marshal()
	if err != nil {
		return err
	}

	if err := f.root.MkdirAllInRoot(shard, dirPerm); err != nil {
		return unavailable("mkdir", err)
	}
	if err := f.root.WriteFileInRoot(path, data, filePerm); err != nil {
		return unavailable("write", err)
	}
	return nil
}

func (f *File) Delete(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, path, err := f.path(identity)
	if err != nil {
		return err
	}
	if err := f.root.RemoveInRoot(path); err != nil {
		return unavailable("remove", err)
	}
	return nil
}

func (f *File) Close(context.Context) error {
	return f.root.Close()
}
