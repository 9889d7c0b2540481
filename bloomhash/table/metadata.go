package table

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	internal "github.com/ZanzyTHEbar/bloomhash/bloomhash"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"
)

// Metadata is the sidecar record describing one built table.
//
// On disk it is four newline-terminated lines, in order: decimal bit count,
// table file path, hash method name, source wordlist path.
type Metadata struct {
	Size         uint64
	TablePath    string
	MethodName   string
	WordlistPath string
}

// TablePath returns the table file path for a wordlist and method name:
// <wordlist>.bloomhash.<method>.dat
func TablePath(wordlistPath, methodName string) string {
	return wordlistPath + internal.TableSuffix + methodName + internal.TableExtension
}

// MetadataPath returns the sidecar metadata path for a wordlist and method
// name: <wordlist>.bloomhash.<method>.dat.size
func MetadataPath(wordlistPath, methodName string) string {
	return TablePath(wordlistPath, methodName) + internal.MetaExtension
}

// New returns the metadata record for a table built from wordlistPath.
func New(wordlistPath, methodName string, size uint64) Metadata {
	return Metadata{
		Size:         size,
		TablePath:    TablePath(wordlistPath, methodName),
		MethodName:   methodName,
		WordlistPath: wordlistPath,
	}
}

// Path returns where this record is stored.
func (m Metadata) Path() string { return m.TablePath + internal.MetaExtension }

// Write stores m at path, replacing any previous file.
func (m Metadata) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return common.WrapIO("create metadata", path, err)
	}

	w := bufio.NewWriter(f)
	for _, line := range []string{
		strconv.FormatUint(m.Size, 10),
		m.TablePath,
		m.MethodName,
		m.WordlistPath,
	} {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return common.WrapIO("write metadata", path, err)
	}
	return common.WrapIO("close metadata", path, f.Close())
}

// ReadMetadata loads the record stored at path.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, common.WrapIO("open metadata", path, err)
	}
	defer f.Close()

	var lines []string
	r := bufio.NewReader(f)
	for len(lines) < 4 {
		line, err := r.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Metadata{}, common.WrapIO("read metadata", path, err)
		}
	}
	if len(lines) < 4 {
		return Metadata{}, fmt.Errorf("%w: %s has %d of 4 lines", common.ErrMalformedMetadata, path, len(lines))
	}

	size, err := strconv.ParseUint(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: size %q: %v", common.ErrMalformedMetadata, path, lines[0], err)
	}
	if size == 0 {
		return Metadata{}, fmt.Errorf("%w: %s: size is zero", common.ErrMalformedMetadata, path)
	}

	return Metadata{
		Size:         size,
		TablePath:    lines[1],
		MethodName:   lines[2],
		WordlistPath: lines[3],
	}, nil
}
