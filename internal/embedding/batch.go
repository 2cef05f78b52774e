package embedding

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"raw-organizer/internal/filesystem"
)

const (
	// VectorsFileName holds the N×D float32 matrix in NumPy .npy format.
	VectorsFileName = "embeddings.npy"
	// MetaFileName holds the identity index and model information.
	MetaFileName = "meta.json"
)

// ErrInvalidBatch is returned when a saved batch cannot be read back.
var ErrInvalidBatch = errors.New("invalid embedding batch")

// Meta is the JSON index stored next to the vector matrix.
type Meta struct {
	ImageIDs  []string `json:"image_ids"`
	ModelName string   `json:"model_name"`
	Dimension int      `json:"dimension"`
	Count     int      `json:"count"`
}

var npyMagic = []byte("\x93NUMPY")

// SaveBatch writes embeddings to dir as embeddings.npy (little-endian
// float32, shape (N, D)) and meta.json. Both files are replaced atomically.
func SaveBatch(dir string, embeddings []Embedding, model string) error {
	dim, err := Dimension(embeddings)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create embedding dir: %w", err)
	}

	err = filesystem.SaveAtomic(filepath.Join(dir, VectorsFileName), 0o644, func(w io.Writer) error {
		return writeNPY(w, embeddings, dim)
	})
	if err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}

	meta := Meta{ImageIDs: make([]string, len(embeddings)), ModelName: model, Dimension: dim, Count: len(embeddings)}
	for i, e := range embeddings {
		meta.ImageIDs[i] = e.ID
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := filesystem.WriteFileAtomic(filepath.Join(dir, MetaFileName), data, 0o644); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// LoadBatch reads a batch written by SaveBatch.
func LoadBatch(dir string) ([]Embedding, Meta, error) {
	var meta Meta
	data, err := os.ReadFile(filepath.Join(dir, MetaFileName))
	if err != nil {
		return nil, meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, meta, fmt.Errorf("%w: meta: %v", ErrInvalidBatch, err)
	}

	f, err := os.Open(filepath.Join(dir, VectorsFileName))
	if err != nil {
		return nil, meta, err
	}
	defer f.Close()

	rows, cols, err := readNPYHeader(bufio.NewReader(f), f)
	if err != nil {
		return nil, meta, err
	}
	if rows != len(meta.ImageIDs) || rows != meta.Count || (rows > 0 && cols != meta.Dimension) {
		return nil, meta, fmt.Errorf("%w: matrix %dx%d does not match meta (%d ids, dim %d)",
			ErrInvalidBatch, rows, cols, len(meta.ImageIDs), meta.Dimension)
	}

	embeddings := make([]Embedding, rows)
	for i := range embeddings {
		vec := make([]float32, cols)
		if err := binary.Read(f, binary.LittleEndian, vec); err != nil {
			return nil, meta, fmt.Errorf("%w: row %d: %v", ErrInvalidBatch, i, err)
		}
		embeddings[i] = Embedding{ID: meta.ImageIDs[i], Vector: vec, Model: meta.ModelName}
	}
	return embeddings, meta, nil
}

// writeNPY writes a version 1.0 .npy file. The header is padded with spaces
// and a trailing newline so the data starts on a 64-byte boundary.
func writeNPY(w io.Writer, embeddings []Embedding, dim int) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(embeddings), dim)
	preamble := len(npyMagic) + 2 + 2
	pad := 64 - (preamble+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	buf := make([]byte, 4*dim)
	for _, e := range embeddings {
		for j, v := range e.Vector {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

var (
	npyShape = regexp.MustCompile(`'shape':\s*\((\d+),\s*(\d*)\s*\)`)
	npyDescr = regexp.MustCompile(`'descr':\s*'<f4'`)
	npyOrder = regexp.MustCompile(`'fortran_order':\s*False`)
)

// readNPYHeader parses the header of a version 1.0 .npy file and seeks f to
// the start of the data.
func readNPYHeader(r *bufio.Reader, f io.Seeker) (rows, cols int, err error) {
	pre := make([]byte, len(npyMagic)+4)
	if _, err := io.ReadFull(r, pre); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if string(pre[:len(npyMagic)]) != string(npyMagic) || pre[len(npyMagic)] != 1 {
		return 0, 0, fmt.Errorf("%w: not a version 1 .npy file", ErrInvalidBatch)
	}
	hlen := int(binary.LittleEndian.Uint16(pre[len(npyMagic)+2:]))
	header := make([]byte, hlen)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, fmt.Errorf("%w: header: %v", ErrInvalidBatch, err)
	}

	h := string(header)
	if !npyDescr.MatchString(h) || !npyOrder.MatchString(h) {
		return 0, 0, fmt.Errorf("%w: unsupported dtype or order: %s", ErrInvalidBatch, strings.TrimSpace(h))
	}
	m := npyShape.FindStringSubmatch(h)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: no 2-D shape in header", ErrInvalidBatch)
	}
	rows, _ = strconv.Atoi(m[1])
	cols, _ = strconv.Atoi(m[2])

	if _, err := f.Seek(int64(len(pre)+hlen), io.SeekStart); err != nil {
		return 0, 0, err
	}
	return rows, cols, nil
}
