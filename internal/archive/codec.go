package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/calvinalkan/twpatch/internal/fs"
)

// Container format constants.
const (
	archiveMagic   = "TWPK"
	archiveVersion = 1
	headerSize     = len(archiveMagic) + 2 + 1
)

// Archive errors.
var (
	ErrInvalidArchive = errors.New("invalid archive")
	errPathTooLong    = errors.New("record path too long")
	errNameTooLong    = errors.New("dependency name too long")
	errRecordTooLarge = errors.New("record too large")
)

// Header is the fixed prefix of an archive file.
type Header struct {
	Version  uint16
	Category Category
}

// ReadHeader reads only the header of the archive at path. It is used to
// probe archive categories without loading records.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path) //nolint:gosec // archive paths come from the game install
	if err != nil {
		return Header{}, fmt.Errorf("open archive: %w", err)
	}

	defer func() { _ = f.Close() }()

	buf := make([]byte, headerSize)

	_, err = io.ReadFull(f, buf)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %s: short header", ErrInvalidArchive, path)
	}

	return parseHeader(buf)
}

func parseHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize || string(buf[:4]) != archiveMagic {
		return Header{}, fmt.Errorf("%w: bad magic", ErrInvalidArchive)
	}

	h := Header{
		Version:  binary.LittleEndian.Uint16(buf[4:6]),
		Category: Category(buf[6]),
	}

	if h.Version != archiveVersion {
		return Header{}, fmt.Errorf("%w: version %d, want %d", ErrInvalidArchive, h.Version, archiveVersion)
	}

	return h, nil
}

// Open reads the archive at path. The archive name is the file name.
func Open(path string) (*Archive, error) {
	data, err := os.ReadFile(path) //nolint:gosec // archive paths come from the game install
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	a, err := Decode(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	a.DiskPath = path

	return a, nil
}

// OpenAll opens each path in order.
func OpenAll(paths []string) ([]*Archive, error) {
	archives := make([]*Archive, 0, len(paths))

	for _, p := range paths {
		a, err := Open(p)
		if err != nil {
			return nil, err
		}

		archives = append(archives, a)
	}

	return archives, nil
}

// Decode parses an encoded archive.
func Decode(name string, data []byte) (*Archive, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data[headerSize:])
	a := New(name, h.Category)

	depCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: dependency count: %w", ErrInvalidArchive, err)
	}

	for i := range int(depCount) {
		hard, hardErr := r.ReadByte()

		depName, nameErr := readShortString(r)

		err = errors.Join(hardErr, nameErr)
		if err != nil {
			return nil, fmt.Errorf("%w: dependency %d: %w", ErrInvalidArchive, i, err)
		}

		a.Dependencies = append(a.Dependencies, Dependency{Name: depName, Hard: hard != 0})
	}

	recCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: record count: %w", ErrInvalidArchive, err)
	}

	for i := range int(recCount) {
		rec, recErr := readRecord(r)
		if recErr != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrInvalidArchive, i, recErr)
		}

		a.records[rec.Path] = rec
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidArchive, r.Len())
	}

	return a, nil
}

func readRecord(r *bytes.Reader) (Record, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return Record{}, err
	}

	path, err := readShortString(r)
	if err != nil {
		return Record{}, err
	}

	size, err := readU32(r)
	if err != nil {
		return Record{}, err
	}

	if int64(size) > int64(r.Len()) {
		return Record{}, fmt.Errorf("%s: %d bytes declared, %d left", path, size, r.Len())
	}

	data := make([]byte, size)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return Record{}, err
	}

	return Record{Path: path, Kind: Kind(kind), Data: data}, nil
}

// Encode serializes a. Records are written in path order so equal archives
// encode to equal bytes.
func Encode(a *Archive) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(archiveMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(archiveVersion))
	buf.WriteByte(byte(a.Category))

	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(a.Dependencies))) //nolint:gosec // small

	for _, dep := range a.Dependencies {
		if len(dep.Name) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %s", errNameTooLong, dep.Name)
		}

		if dep.Hard {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

		writeShortString(&buf, dep.Name)
	}

	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(a.records))) //nolint:gosec // record counts fit u32

	for _, p := range a.Paths() {
		rec := a.records[p]

		if len(p) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %s", errPathTooLong, p)
		}

		if int64(len(rec.Data)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %s", errRecordTooLarge, p)
		}

		buf.WriteByte(byte(rec.Kind))
		writeShortString(&buf, p)
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(rec.Data)))
		buf.Write(rec.Data)
	}

	return buf.Bytes(), nil
}

// Save encodes a and atomically replaces the file at path.
func Save(a *Archive, path string) error {
	data, err := Encode(a)
	if err != nil {
		return fmt.Errorf("encode %s: %w", a.Name, err)
	}

	err = fs.WriteFileAtomic(path, data)
	if err != nil {
		return fmt.Errorf("save %s: %w", a.Name, err)
	}

	return nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32

	err := binary.Read(r, binary.LittleEndian, &v)
	if err != nil {
		return 0, err
	}

	return v, nil
}

func writeShortString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(s))) //nolint:gosec // checked by callers
	buf.WriteString(s)
}

func readShortString(r *bytes.Reader) (string, error) {
	var n uint16

	err := binary.Read(r, binary.LittleEndian, &n)
	if err != nil {
		return "", err
	}

	if int(n) > r.Len() {
		return "", fmt.Errorf("string of %d bytes, %d left", n, r.Len())
	}

	data := make([]byte, n)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return "", err
	}

	return string(data), nil
}
