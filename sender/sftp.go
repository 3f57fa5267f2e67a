package sender

import (
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/settings"
)

// sftpUploader puts captures on the lab server, one directory per
// experiment under the configured base directory.
type sftpUploader struct {
	ssh     *ssh.Client
	client  *sftp.Client
	baseDir string
}

func newSFTPUploader(s *settings.Settings) (*sftpUploader, error) {
	addr := net.JoinHostPort(s.SFTPHost, strconv.Itoa(s.SFTPPort))
	conf := &ssh.ClientConfig{
		User: s.SFTPUser,
		Auth: []ssh.AuthMethod{ssh.Password(s.SFTPPassword)},
		// The lab server lives on the same bench network; host keys are
		// not managed on the devices.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}
	conn, err := ssh.Dial("tcp", addr, conf)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reach %s", addr)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open sftp session")
	}
	return &sftpUploader{ssh: conn, client: client, baseDir: s.SFTPBaseDir}, nil
}

// Upload puts the file under baseDir/experiment/name and verifies the
// remote size before reporting success.
func (u *sftpUploader) Upload(localPath, experiment, name string) error {
	dir := path.Join(u.baseDir, experiment)
	if err := u.client.MkdirAll(dir); err != nil {
		return errors.Wrapf(err, "failed to create remote directory %s", dir)
	}

	in, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "failed to open local capture")
	}
	defer in.Close()

	remotePath := path.Join(dir, name)
	out, err := u.client.Create(remotePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", remotePath)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "failed to write %s", remotePath)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", remotePath)
	}

	localInfo, err := os.Stat(localPath)
	if err != nil {
		return errors.Wrap(err, "failed to stat local capture")
	}
	remoteInfo, err := u.client.Stat(remotePath)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", remotePath)
	}
	if localInfo.Size() != remoteInfo.Size() {
		return errors.Newf("size mismatch for %s: local %d, remote %d",
			name, localInfo.Size(), remoteInfo.Size())
	}
	return nil
}

func (u *sftpUploader) Close() error {
	u.client.Close()
	return u.ssh.Close()
}
