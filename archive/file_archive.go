package archive

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	archiveFilePerm = 0600
	archiveDirPerm  = 0700

	// maxRecordSize bounds a single framed record; a decision carries at
	// most one vote per slice member, so anything near this is corruption.
	maxRecordSize = 8 * 1024 * 1024

	defaultBufSize = 64 * 1024
)

// FileArchiver appends decision records to a single file. Each record is
// framed as crc32 (4 bytes) + length (4 bytes) + JSON payload, both
// big-endian, so a torn tail write is detectable on read.
type FileArchiver struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer

	// Sync forces an fsync after every record.
	Sync bool

	closed bool
}

// NewFileArchiver opens (or creates) an archive file for appending.
func NewFileArchiver(path string) (*FileArchiver, error) {
	if err := os.MkdirAll(filepath.Dir(path), archiveDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, archiveFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	return &FileArchiver{
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, defaultBufSize),
	}, nil
}

// Archive implements Archiver.
func (a *FileArchiver) Archive(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}
	if len(data) > maxRecordSize {
		return fmt.Errorf("archive record too large: %d bytes", len(data))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	var frame [8]byte
	binary.BigEndian.PutUint32(frame[0:4], crc32.ChecksumIEEE(data))
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(data)))
	if _, err := a.buf.Write(frame[:]); err != nil {
		return err
	}
	if _, err := a.buf.Write(data); err != nil {
		return err
	}

	if a.Sync {
		if err := a.buf.Flush(); err != nil {
			return err
		}
		return a.file.Sync()
	}
	return nil
}

// Flush writes any buffered records to the file.
func (a *FileArchiver) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.buf.Flush()
}

// Close implements Archiver.
func (a *FileArchiver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.buf.Flush(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}

// ReadAll decodes every record in an archive file. A corrupted or truncated
// frame stops reading; records decoded before it are returned along with
// ErrCorrupted.
func ReadAll(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, defaultBufSize)
	var out []*Record
	for {
		var frame [8]byte
		if _, err := io.ReadFull(r, frame[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("%w: truncated frame header", ErrCorrupted)
		}
		crc := binary.BigEndian.Uint32(frame[0:4])
		length := binary.BigEndian.Uint32(frame[4:8])
		if length > maxRecordSize {
			return out, fmt.Errorf("%w: frame length %d", ErrCorrupted, length)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return out, fmt.Errorf("%w: truncated frame body", ErrCorrupted)
		}
		if crc32.ChecksumIEEE(data) != crc {
			return out, fmt.Errorf("%w: checksum mismatch", ErrCorrupted)
		}
		rec := &Record{}
		if err := json.Unmarshal(data, rec); err != nil {
			return out, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		out = append(out, rec)
	}
}
