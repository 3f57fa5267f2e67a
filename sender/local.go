package sender

import (
	"io"
	"os"
	"path/filepath"

	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/settings"
)

// driveUploader files captures on a mounted USB drive when no server is
// configured. The drive must already carry a directory named after the
// base dir; a bare stick is left alone.
type driveUploader struct {
	root string
}

func newDriveUploader(s *settings.Settings) (*driveUploader, error) {
	mounts, err := filepath.Glob(s.DriveGlob)
	if err != nil {
		return nil, errors.Wrapf(err, "bad drive glob %q", s.DriveGlob)
	}
	for _, mount := range mounts {
		root := filepath.Join(mount, s.SFTPBaseDir)
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return &driveUploader{root: root}, nil
		}
	}
	return nil, errors.Newf("no mounted drive with a %s directory under %s",
		s.SFTPBaseDir, s.DriveGlob)
}

// Upload copies the capture into root/experiment/name and verifies the
// size, mirroring the remote path layout.
func (u *driveUploader) Upload(localPath, experiment, name string) error {
	dir := filepath.Join(u.root, experiment)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	dest := filepath.Join(dir, name)
	in, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "failed to open local capture")
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dest)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "failed to write %s", dest)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", dest)
	}

	localInfo, err := os.Stat(localPath)
	if err != nil {
		return errors.Wrap(err, "failed to stat local capture")
	}
	destInfo, err := os.Stat(dest)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", dest)
	}
	if localInfo.Size() != destInfo.Size() {
		return errors.Newf("size mismatch for %s", name)
	}
	return nil
}

func (u *driveUploader) Close() error { return nil }
