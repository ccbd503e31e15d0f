// Package sftpfs implements a vfs.FS backed by an SFTP connection,
// supporting the "remote store" VFS backend called out by the comparison
// engine's interface. It is read-only: Capabilities reports only CapRead,
// and Create, Rename and SetModTime return an ErrorKindUnsupported error.
package sftpfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/vfs"
)

// FS is a vfs.FS backed by an SFTP session.
type FS struct {
	client     *sftp.Client
	sshClient  *ssh.Client
	root       string
	instanceID string
}

// Dial connects to addr (host:port) as user, authenticating with the
// supplied ssh.AuthMethods, and mounts root as the backend's scan root.
// Host key verification is the caller's responsibility via config; callers
// that cannot verify a host key should use ssh.InsecureIgnoreHostKey()
// explicitly rather than leaving verification to this package.
func Dial(ctx context.Context, addr, user, root string, auth []ssh.AuthMethod, hostKeyCallback ssh.HostKeyCallback) (*FS, error) {
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindIO, "", fmt.Errorf("unable to dial %s: %w", addr, err))
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, diffcore.NewError(diffcore.ErrorKindIO, "", fmt.Errorf("unable to start SFTP session: %w", err))
	}

	if _, err := client.Stat(root); err != nil {
		client.Close()
		sshClient.Close()
		return nil, translateErr(err, "")
	}

	return &FS{
		client:     client,
		sshClient:  sshClient,
		root:       root,
		instanceID: "sftp:" + user + "@" + addr + ":" + root,
	}, nil
}

// Capabilities implements vfs.FS.Capabilities.
func (f *FS) Capabilities() vfs.Capability {
	return vfs.CapRead
}

// InstanceID implements vfs.FS.InstanceID.
func (f *FS) InstanceID() string {
	return f.instanceID
}

func (f *FS) resolve(p string) string {
	if p == "" {
		return f.root
	}
	return path.Join(f.root, p)
}

func translateErr(err error, p string) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return diffcore.NewError(diffcore.ErrorKindNotFound, p, err)
	}
	if strings.Contains(err.Error(), "permission denied") {
		return diffcore.NewError(diffcore.ErrorKindPermissionDenied, p, err)
	}
	return diffcore.NewError(diffcore.ErrorKindIO, p, err)
}

func infoFromStat(name string, fi os.FileInfo) *vfs.Info {
	kind := vfs.KindFile
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		kind = vfs.KindSymlink
	case fi.IsDir():
		kind = vfs.KindDirectory
	}
	// SFTP's mtime granularity is one second; the hash cache keys on
	// mtime-seconds, so this loses no information the cache relies on.
	modTime := fi.ModTime()
	return &vfs.Info{
		Name:    name,
		Kind:    kind,
		Size:    uint64(fi.Size()),
		ModTime: modTime,
		Mode:    uint32(fi.Mode().Perm()),
	}
}

// Stat implements vfs.FS.Stat.
func (f *FS) Stat(ctx context.Context, p string) (*vfs.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, p, err)
	}
	native := f.resolve(p)
	fi, err := f.client.Lstat(native)
	if err != nil {
		return nil, translateErr(err, p)
	}
	name := fi.Name()
	if p == "" {
		name = ""
	}
	info := infoFromStat(name, fi)
	if info.Kind == vfs.KindSymlink {
		if target, err := f.client.ReadLink(native); err == nil {
			info.LinkTarget = target
		}
	}
	return info, nil
}

// ReadDir implements vfs.FS.ReadDir.
func (f *FS) ReadDir(ctx context.Context, p string) ([]*vfs.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, p, err)
	}
	native := f.resolve(p)
	entries, err := f.client.ReadDir(native)
	if err != nil {
		return nil, translateErr(err, p)
	}
	result := make([]*vfs.Info, 0, len(entries))
	for _, fi := range entries {
		info := infoFromStat(fi.Name(), fi)
		if info.Kind == vfs.KindSymlink {
			if target, err := f.client.ReadLink(path.Join(native, fi.Name())); err == nil {
				info.LinkTarget = target
			}
		}
		result = append(result, info)
	}
	return result, nil
}

// Open implements vfs.FS.Open.
func (f *FS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, p, err)
	}
	file, err := f.client.Open(f.resolve(p))
	if err != nil {
		return nil, translateErr(err, p)
	}
	return file, nil
}

// Create implements vfs.FS.Create. Not supported by this backend.
func (f *FS) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return nil, diffcore.NewError(diffcore.ErrorKindUnsupported, p, fmt.Errorf("sftp backend is read-only"))
}

// Rename implements vfs.FS.Rename. Not supported by this backend.
func (f *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	return diffcore.NewError(diffcore.ErrorKindUnsupported, oldPath, fmt.Errorf("sftp backend is read-only"))
}

// SetModTime implements vfs.FS.SetModTime. Not supported by this backend.
func (f *FS) SetModTime(ctx context.Context, p string, modTime time.Time) error {
	return diffcore.NewError(diffcore.ErrorKindUnsupported, p, fmt.Errorf("sftp backend is read-only"))
}

// Close implements vfs.FS.Close, closing the SFTP session and underlying
// SSH connection.
func (f *FS) Close() error {
	err := f.client.Close()
	if sshErr := f.sshClient.Close(); err == nil {
		err = sshErr
	}
	return err
}
