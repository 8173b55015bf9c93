package csvsource

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/maltedev/pricewatch/internal/models"
)

// ftpConn is the part of *ftp.ServerConn the reader needs.
type ftpConn interface {
	Login(user, password string) error
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type ftpDialer func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// dialFTP connects in passive mode (PASV).
func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	c, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
		ftp.DialWithDisabledEPSV(true),
	)
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

type FTPReader struct {
	dial ftpDialer
}

func NewFTPReader() *FTPReader {
	return &FTPReader{dial: dialFTP}
}

func (r *FTPReader) Kind() models.SourceKind { return models.SourceFTP }

func (r *FTPReader) Read(ctx context.Context, cfg models.SupplierSourceConfig) ([]models.RawProductRow, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := r.dial(ctx, addr, cfg.TimeoutDuration(30*time.Second))
	if err != nil {
		return nil, &FetchError{Source: "ftp://" + addr, Err: fmt.Errorf("could not connect: %w", err)}
	}
	defer conn.Quit()

	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		return nil, &FetchError{Source: "ftp://" + addr, Err: fmt.Errorf("could not login: %w", err)}
	}

	tmp, err := os.CreateTemp("", "csv_ftp_*.csv")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := download(conn, cfg.Path, tmp); err != nil {
		return nil, &FetchError{Source: "ftp://" + addr + cfg.Path, Err: err}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind temp file: %w", err)
	}

	return ParseRows(tmp, cfg)
}

func download(conn ftpConn, path string, dst io.Writer) error {
	body, err := conn.Retr(path)
	if err != nil {
		return fmt.Errorf("could not download %s: %w", path, err)
	}
	defer body.Close()

	if _, err := io.Copy(dst, body); err != nil {
		return fmt.Errorf("could not download %s: %w", path, err)
	}
	return nil
}
