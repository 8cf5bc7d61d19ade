package multimap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/embedtree/internal/compress"
	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
	"github.com/Sumatoshi-tech/embedtree/pkg/safeconv"
)

// snapshotMagic opens every serialized arena; the byte after it is the format
// version. Version 2 follows each column with its xxhash64 digest.
const (
	snapshotMagic   = "ETAR"
	snapshotVersion = 2
	digestSize      = 8
)

// Serialization errors.
var (
	ErrNotHibernated  = errors.New("serialization requires the hibernated state")
	ErrNotLoaded      = errors.New("hibernated columns were released by Serialize")
	ErrBadMagic       = errors.New("not an arena snapshot")
	ErrBadVersion     = errors.New("unsupported arena snapshot version")
	ErrCorruptLength  = errors.New("corrupt length in arena snapshot")
	ErrCorruptColumns = errors.New("corrupt arena column")
)

// Serialize writes the hibernated arena to path. The compressed columns are
// released afterwards; the arena can only be restored with Deserialize.
func (arena *Arena) Serialize(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	err = arena.SerializeTo(file)
	closeErr := file.Close()

	if err != nil {
		return err
	}

	if closeErr != nil {
		return fmt.Errorf("close file: %w", closeErr)
	}

	return nil
}

// SerializeTo writes the hibernated arena to w, see Serialize.
func (arena *Arena) SerializeTo(w io.Writer) error {
	if arena.storage != nil {
		return ErrNotHibernated
	}

	buffered := bufio.NewWriter(w)

	header := append([]byte(snapshotMagic), snapshotVersion)
	header = binary.AppendUvarint(header, safeconv.MustIntToUint64(arena.hibernatedStorageLen))
	header = binary.AppendUvarint(header, safeconv.MustIntToUint64(arena.hibernatedGapsLen))

	_, err := buffered.Write(header)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for idx, column := range arena.hibernatedData {
		_, err = buffered.Write(binary.AppendUvarint(nil, safeconv.MustIntToUint64(len(column))))
		if err != nil {
			return fmt.Errorf("write column len %d: %w", idx, err)
		}

		_, err = buffered.Write(column)
		if err != nil {
			return fmt.Errorf("write column %d: %w", idx, err)
		}

		_, err = buffered.Write(binary.LittleEndian.AppendUint64(nil, xxhash.Sum64(column)))
		if err != nil {
			return fmt.Errorf("write column digest %d: %w", idx, err)
		}
	}

	err = buffered.Flush()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	arena.hibernatedData = [hibernatedLen][]byte{}

	return nil
}

// Deserialize reads a hibernated arena from path. Call Boot to use it.
func (arena *Arena) Deserialize(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}

	defer file.Close()

	return arena.DeserializeFrom(file)
}

// DeserializeFrom reads a hibernated arena from r, see Deserialize.
func (arena *Arena) DeserializeFrom(r io.Reader) error {
	if len(arena.storage) > 0 {
		return ErrNotHibernated
	}

	buffered := bufio.NewReader(r)

	header := make([]byte, len(snapshotMagic)+1)

	_, err := io.ReadFull(buffered, header)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	if string(header[:len(snapshotMagic)]) != snapshotMagic {
		return ErrBadMagic
	}

	if header[len(snapshotMagic)] != snapshotVersion {
		return fmt.Errorf("%w: %d", ErrBadVersion, header[len(snapshotMagic)])
	}

	storageLen, err := readLength(buffered, uint64(rbtree.RefLimit))
	if err != nil {
		return fmt.Errorf("read storage len: %w", err)
	}

	gapsLen, err := readLength(buffered, uint64(storageLen))
	if err != nil {
		return fmt.Errorf("read gaps len: %w", err)
	}

	// A packed column never exceeds the LZ4 bound of its raw size plus the
	// encoding byte.
	maxColumn := uint64(lz4.CompressBlockBound(storageLen*4) + 1)

	var columns [hibernatedLen][]byte

	for idx := range columns {
		words := storageLen
		if idx == columnGaps {
			words = gapsLen
		}

		column, readErr := readColumn(buffered, maxColumn)
		if readErr != nil {
			return fmt.Errorf("read column %d: %w", idx, readErr)
		}

		if words > compress.MaxWords(len(column)) {
			return fmt.Errorf("%w: %d words cannot fit column %d of %d bytes",
				ErrCorruptLength, words, idx, len(column))
		}

		columns[idx] = column
	}

	arena.storage = nil
	arena.gaps = nil
	arena.hibernatedData = columns
	arena.hibernatedStorageLen = storageLen
	arena.hibernatedGapsLen = gapsLen

	return nil
}

// readColumn reads one length-prefixed column and checks its digest. The
// buffer grows with the data actually read, so a corrupt length cannot force
// a large allocation on a short input.
func readColumn(r *bufio.Reader, limit uint64) ([]byte, error) {
	dataLen, err := readLength(r, limit)
	if err != nil {
		return nil, fmt.Errorf("read len: %w", err)
	}

	var column bytes.Buffer

	_, err = io.CopyN(&column, r, int64(dataLen))
	if err != nil {
		return nil, fmt.Errorf("read %d bytes: %w", dataLen, err)
	}

	digest := make([]byte, digestSize)

	_, err = io.ReadFull(r, digest)
	if err != nil {
		return nil, fmt.Errorf("read digest: %w", err)
	}

	if binary.LittleEndian.Uint64(digest) != xxhash.Sum64(column.Bytes()) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptColumns)
	}

	return column.Bytes(), nil
}

func readLength(r io.ByteReader, limit uint64) (int, error) {
	value, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}

	if value > limit {
		return 0, fmt.Errorf("%w: %d exceeds %d", ErrCorruptLength, value, limit)
	}

	return safeconv.MustUint64ToInt(value), nil
}

func joinColumnErrors(errs []error) error {
	var joined []error

	for idx, err := range errs {
		if err != nil {
			joined = append(joined, fmt.Errorf("%w %d: %w", ErrCorruptColumns, idx, err))
		}
	}

	return errors.Join(joined...)
}
