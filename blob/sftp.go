package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"transmute/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type SFTPOptions struct {
	Host     string
	Port     string
	User     string
	Password string
	// PrivateKey is base64 or raw PEM.
	PrivateKey string
	// Root is the remote directory holding one subdirectory per bucket.
	Root string
}

// SFTP stores objects on a remote host. Each operation dials its own
// connection.
type SFTP struct {
	opts   SFTPOptions
	config *ssh.ClientConfig
}

func NewSFTP(opts SFTPOptions) (*SFTP, error) {
	if opts.Host == "" || opts.User == "" {
		return nil, fmt.Errorf("missing required sftp options: host, user")
	}
	if opts.Port == "" {
		opts.Port = "22"
	}

	var auths []ssh.AuthMethod
	if opts.PrivateKey != "" {
		// try to decode as base64, fall back to raw
		keyBytes, err := base64.StdEncoding.DecodeString(opts.PrivateKey)
		if err != nil {
			keyBytes = []byte(opts.PrivateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if opts.Password != "" {
		auths = append(auths, ssh.Password(opts.Password))
	} else {
		return nil, fmt.Errorf("no auth method provided; set SFTP_PASSWORD or SFTP_PRIVATE_KEY")
	}

	return &SFTP{
		opts: opts,
		config: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            auths,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         10 * time.Second,
		},
	}, nil
}

// sftpConn owns the ssh and sftp clients of one operation.
type sftpConn struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (c *sftpConn) Close() error {
	c.sftp.Close()
	return c.ssh.Close()
}

func (s *SFTP) dial(ctx context.Context) (*sftpConn, error) {
	addr := net.JoinHostPort(s.opts.Host, s.opts.Port)

	// Dial respecting context
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, s.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("create sftp client: %w", err)
	}
	return &sftpConn{ssh: sshClient, sftp: sftpClient}, nil
}

func (s *SFTP) remotePath(bucket, key string) (string, error) {
	p := path.Join(s.opts.Root, bucket, key)
	if !strings.HasPrefix(p, path.Join(s.opts.Root, bucket)+"/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return p, nil
}

func (s *SFTP) Upload(ctx context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	remotePath, err := s.remotePath(bucket, key)
	if err != nil {
		return err
	}
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	dir := path.Dir(remotePath)
	if err := mkdirAllSFTP(c.sftp, dir); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", dir, err)
	}

	f, err := c.sftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}

	logger.Infof("Successfully uploaded '%s' to %s", remotePath, s.opts.Host)
	return nil
}

// Download keeps the connection open until the returned reader is closed.
func (s *SFTP) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	remotePath, err := s.remotePath(bucket, key)
	if err != nil {
		return nil, err
	}
	c, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	f, err := c.sftp.Open(remotePath)
	if err != nil {
		c.Close()
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open remote file %s: %w", remotePath, err)
	}
	return &sftpReader{File: f, conn: c}, nil
}

func (s *SFTP) SignedURL(context.Context, string, string, time.Duration, string) (string, error) {
	return "", errors.ErrUnsupported
}

type sftpReader struct {
	*sftp.File
	conn *sftpConn
}

func (r *sftpReader) Close() error {
	r.File.Close()
	return r.conn.Close()
}

// mkdirAllSFTP mimics os.MkdirAll for an SFTP server by creating each segment of the path.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if os.IsNotExist(err) {
				if err := client.Mkdir(cur); err != nil {
					return fmt.Errorf("mkdir %s: %w", cur, err)
				}
			} else {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
		}
	}
	return nil
}
