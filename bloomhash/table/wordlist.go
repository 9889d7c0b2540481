package table

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"
)

// LineFunc receives each wordlist entry with its trailing newline and
// carriage-return characters removed. line is only valid during the call.
type LineFunc func(lineNo uint64, line []byte) error

// EachLine calls fn for every newline-delimited entry of the file at path,
// including a final entry without a trailing newline. It returns the number
// of entries visited. An error from fn stops the scan and is returned as is.
func EachLine(path string, fn LineFunc) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, common.WrapIO("open wordlist", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	var n uint64
	for {
		line, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// entry longer than the buffer: collect the rest of it
			long := append([]byte(nil), line...)
			for errors.Is(err, bufio.ErrBufferFull) {
				line, err = r.ReadSlice('\n')
				long = append(long, line...)
			}
			line = long
		}
		if len(line) > 0 {
			n++
			if fn != nil {
				if ferr := fn(n, bytes.TrimRight(line, "\r\n")); ferr != nil {
					return n, ferr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, common.WrapIO("read wordlist", path, err)
		}
	}
}

// CountLines returns the number of entries EachLine would visit.
func CountLines(path string) (uint64, error) {
	return EachLine(path, nil)
}
