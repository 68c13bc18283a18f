package fct

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/moby/sys/mountinfo"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/beam-cloud/fct/pkg/archive"
	"github.com/beam-cloud/fct/pkg/fctfs"
)

type MountOptions struct {
	ArchivePath string
	MountPoint  string
	Debug       bool
}

// MountArchive prepares a read-only FUSE mount of an archive. The returned
// start function begins serving; the error channel reports a failed mount and
// is closed once the server exits.
func MountArchive(options MountOptions) (func() error, <-chan error, *fuse.Server, error) {
	log.Info().Msgf("mounting archive %s to %s", options.ArchivePath, options.MountPoint)

	if _, err := os.Stat(options.MountPoint); os.IsNotExist(err) {
		err = os.MkdirAll(options.MountPoint, 0755)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create mount point directory: %w", err)
		}
	}

	a, err := archive.OpenReadOnly(options.ArchivePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid archive: %w", err)
	}

	fsys, err := fctfs.NewFileSystem(a)
	if err != nil {
		a.Close()
		return nil, nil, nil, fmt.Errorf("could not create filesystem: %w", err)
	}

	root, _ := fsys.Root()
	attrTimeout := time.Second * 60
	entryTimeout := time.Second * 60
	fsOptions := &fs.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
	}
	server, err := fuse.NewServer(fs.NewNodeFS(root, fsOptions), options.MountPoint, &fuse.MountOptions{
		FsName:        options.ArchivePath,
		Name:          "fct",
		MaxBackground: 64,
		DisableXAttrs: true,
		Debug:         options.Debug,
		MaxReadAhead:  1024 * 128,
	})
	if err != nil {
		a.Close()
		return nil, nil, nil, fmt.Errorf("could not create server: %w", err)
	}

	serverError := make(chan error, 1)
	startServer := func() error {
		go func() {
			defer close(serverError)
			defer a.Close()

			go server.Serve()

			if err := server.WaitMount(); err != nil {
				serverError <- err
				return
			}

			server.Wait()
		}()

		return nil
	}

	return startServer, serverError, server, nil
}

// UnmountArchive unmounts a mount point created by MountArchive.
func UnmountArchive(mountPoint string) error {
	mounted, err := mountinfo.Mounted(mountPoint)
	if err != nil {
		return fmt.Errorf("could not check mount point %s: %w", mountPoint, err)
	}
	if !mounted {
		return fmt.Errorf("%s is not mounted", mountPoint)
	}

	err = unix.Unmount(mountPoint, 0)
	if errors.Is(err, unix.EPERM) {
		// Unprivileged FUSE mounts are released through the setuid helper.
		log.Debug().Msgf("unmount of %s not permitted, trying fusermount", mountPoint)
		out, cmdErr := exec.Command("fusermount", "-u", mountPoint).CombinedOutput()
		if cmdErr != nil {
			return fmt.Errorf("fusermount -u %s: %w: %s", mountPoint, cmdErr, out)
		}
		err = nil
	}
	if err != nil {
		return fmt.Errorf("could not unmount %s: %w", mountPoint, err)
	}

	log.Info().Msgf("unmounted %s", mountPoint)
	return nil
}
