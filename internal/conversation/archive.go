package conversation

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

// ArchiveEntry is the file an export zip must contain.
const ArchiveEntry = "conversations.json"

// ImportArchive extracts conversations.json from the zip in r, validates it,
// and atomically replaces dest with it. The parsed conversations are
// returned so the caller can swap them in without re-reading dest.
func ImportArchive(r io.ReaderAt, size int64, dest string) ([]Conversation, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeArchiveInvalid, "invalid zip file", err)
	}

	entry := findEntry(zr)
	if entry == nil {
		return nil, lenserrors.New(lenserrors.ErrCodeArchiveInvalid,
			fmt.Sprintf("zip does not contain %s", ArchiveEntry), nil)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeArchiveInvalid, "failed to open archive entry", err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeArchiveInvalid, "failed to read archive entry", err)
	}

	conversations, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(dest, data); err != nil {
		return nil, err
	}

	return conversations, nil
}

// ImportArchiveFile is ImportArchive for a zip on disk.
func ImportArchiveFile(zipPath, dest string) ([]Conversation, error) {
	f, err := os.Open(zipPath)
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeFileNotFound,
			fmt.Sprintf("archive not found: %s", zipPath), err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead, "failed to stat archive", err)
	}
	return ImportArchive(f, info.Size(), dest)
}

// findEntry prefers a top-level conversations.json, then the shallowest nested one.
func findEntry(zr *zip.Reader) *zip.File {
	var best *zip.File
	bestDepth := -1
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != ArchiveEntry {
			continue
		}
		depth := strings.Count(f.Name, "/")
		if best == nil || depth < bestDepth {
			best, bestDepth = f, depth
		}
	}
	return best
}

func writeAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return lenserrors.StorageError("failed to create conversations directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".conversations-*.json")
	if err != nil {
		return lenserrors.StorageError("failed to create temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return lenserrors.StorageError("failed to write conversations", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return lenserrors.StorageError("failed to sync conversations", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return lenserrors.StorageError("failed to close conversations", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return lenserrors.StorageError("failed to replace conversations", err)
	}
	return nil
}
