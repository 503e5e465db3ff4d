package assembly

import (
	"archive/zip"
	"compress/flate"
	"io"
	"time"
)

// archiveWriter wraps zip.Writer with the fixed header policy that keeps
// archives reproducible: one modification time for every entry, maximum
// deflate compression, file entries only.
type archiveWriter struct {
	zw      *zip.Writer
	modTime time.Time
	entries int
}

func newArchiveWriter(w io.Writer, modTime time.Time) *archiveWriter {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return &archiveWriter{zw: zw, modTime: modTime.UTC()}
}

// Create opens the next entry. The previous entry must be fully written
// first; zip streams strictly in sequence.
func (a *archiveWriter) Create(name string) (io.Writer, error) {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: a.modTime,
	}
	hdr.SetMode(0o644)
	w, err := a.zw.CreateHeader(hdr)
	if err != nil {
		return nil, err
	}
	a.entries++
	return w, nil
}

func (a *archiveWriter) Close() error {
	return a.zw.Close()
}
