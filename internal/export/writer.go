package export

import (
	"bufio"
	"io"
)

const (
	collectionOpen  = `{"type":"FeatureCollection","features":[`
	collectionClose = `]}`
)

// FeatureWriter streams already-serialized features into a FeatureCollection
// document. Memory use does not depend on the number of features; the
// document is valid after Close even when no feature was written.
type FeatureWriter struct {
	w     *bufio.Writer
	count int64
}

func NewFeatureWriter(w io.Writer) (*FeatureWriter, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.WriteString(collectionOpen); err != nil {
		return nil, err
	}
	return &FeatureWriter{w: bw}, nil
}

func (fw *FeatureWriter) Write(feature []byte) error {
	if fw.count > 0 {
		if err := fw.w.WriteByte(','); err != nil {
			return err
		}
	}
	if _, err := fw.w.Write(feature); err != nil {
		return err
	}
	fw.count++
	return nil
}

// Count is the number of features written so far.
func (fw *FeatureWriter) Count() int64 {
	return fw.count
}

// Close terminates the document and flushes. It does not close the underlying writer.
func (fw *FeatureWriter) Close() error {
	if _, err := fw.w.WriteString(collectionClose); err != nil {
		return err
	}
	return fw.w.Flush()
}
