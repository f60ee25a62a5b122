package hnsw

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

// File format: magic, version, graph parameters, rebuild generation, then
// one record per node (level count, raw vector, per-layer adjacency).
// Little endian throughout. Version 1 files predate the generation field
// and load as generation zero.
const (
	fileMagic   = uint32(0x434f5658) // "COVX"
	fileVersion = uint32(2)
)

// Save writes the graph and raw vectors to path. The file is written to a
// temporary sibling and atomically renamed, so a failed write never
// clobbers the previous snapshot and the in-memory index stays valid.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.closed {
		return domain.ErrIndexClosed
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", domain.ErrPersistence, err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	if err := ix.encode(w); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: encode index: %w", domain.ErrPersistence, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: flush index: %w", domain.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp: %w", domain.ErrPersistence, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename index: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Load reads an index previously written by Save. A missing file returns
// domain.ErrNotFound so callers can start fresh.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	ix, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	return ix, nil
}

func (ix *Index) encode(w io.Writer) error {
	header := []uint32{
		fileMagic,
		fileVersion,
		uint32(ix.dim),
		uint32(ix.m),
		uint32(ix.efConstruction),
		uint32(len(ix.nodes)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, int32(ix.entry)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(ix.maxLevel)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, ix.generation); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, n := range ix.nodes {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(n.neighbors))); err != nil {
			return err
		}
		for _, x := range n.vector {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
		for _, layer := range n.neighbors {
			if err := binary.Write(w, binary.LittleEndian, uint32(len(layer))); err != nil {
				return err
			}
			for _, nb := range layer {
				if err := binary.Write(w, binary.LittleEndian, nb); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func decode(r io.Reader) (*Index, error) {
	var magic, version, dim, m, efc, count uint32
	for _, p := range []*uint32{&magic, &version, &dim, &m, &efc, &count} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, err
		}
	}
	if magic != fileMagic {
		return nil, errors.New("bad magic")
	}
	if version != 1 && version != fileVersion {
		return nil, fmt.Errorf("unsupported version %d", version)
	}

	var entry, maxLevel int32
	if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &maxLevel); err != nil {
		return nil, err
	}
	var generation uint64
	if version >= 2 {
		if err := binary.Read(r, binary.LittleEndian, &generation); err != nil {
			return nil, err
		}
	}

	ix, err := New(Config{Dimension: int(dim), M: int(m), EFConstruction: int(efc)})
	if err != nil {
		return nil, err
	}
	ix.entry = int(entry)
	ix.maxLevel = int(maxLevel)
	ix.generation = generation
	ix.nodes = make([]*node, 0, count)

	buf := make([]byte, 4)
	for i := uint32(0); i < count; i++ {
		var levels uint32
		if err := binary.Read(r, binary.LittleEndian, &levels); err != nil {
			return nil, err
		}

		n := &node{
			vector:    make([]float32, dim),
			neighbors: make([][]int32, levels),
		}
		for j := range n.vector {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			n.vector[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		}
		for l := range n.neighbors {
			var edges uint32
			if err := binary.Read(r, binary.LittleEndian, &edges); err != nil {
				return nil, err
			}
			if edges > count {
				return nil, fmt.Errorf("node %d layer %d: edge count %d exceeds node count", i, l, edges)
			}
			n.neighbors[l] = make([]int32, edges)
			for e := range n.neighbors[l] {
				if err := binary.Read(r, binary.LittleEndian, &n.neighbors[l][e]); err != nil {
					return nil, err
				}
			}
		}
		ix.nodes = append(ix.nodes, n)
	}

	if ix.entry >= len(ix.nodes) {
		return nil, fmt.Errorf("entry point %d out of range", ix.entry)
	}
	return ix, nil
}
