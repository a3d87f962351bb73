package appdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/labrig-project/labrig/pkg/errkind"
	"gopkg.in/yaml.v3"
)

// arrayInlineMaxElements mirrors the source's SafeRepresenter.ndarray_max_size:
// a dense array at or under this many elements is YAML-inlined; anything
// larger spills to its own numbered sidecar file next to the record.
const arrayInlineMaxElements = 20

// Key identifies one module's appdata record: the module class's simple
// name, its base (hardware/logic/gui), and its configured instance name.
type Key struct {
	ClassName string
	Base      string
	Name      string
}

// fileName mirrors the source layout: "status-<ClassName>[-<name>].cfg",
// the instance-name suffix only present when it differs from the class
// name (the common case of a single configured instance).
func (k Key) fileName() string {
	if k.Name == "" || k.Name == k.ClassName {
		return "status-" + k.ClassName + ".cfg"
	}
	return "status-" + k.ClassName + "-" + k.Name + ".cfg"
}

// Record is a per-module appdata payload: status-variable name -> Value.
type Record map[string]Value

// Store persists Records under a directory, one file per Key.
type Store struct {
	dir string
}

// New constructs a Store rooted at dir. The directory is created lazily on
// first Dump, not here.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(k Key) string {
	return filepath.Join(s.dir, k.fileName())
}

// Exists reports whether an on-disk record exists for k.
func (s *Store) Exists(k Key) bool {
	_, err := os.Stat(s.path(k))
	return err == nil
}

// Load reads the record for k. If absent and ignoreMissing is true, an
// empty Record is returned; otherwise a NotFound-wrapping error.
func (s *Store) Load(k Key, ignoreMissing bool) (Record, error) {
	data, err := os.ReadFile(s.path(k))
	if err != nil {
		if os.IsNotExist(err) {
			if ignoreMissing {
				return Record{}, nil
			}
			return nil, &notFoundErr{k}
		}
		return nil, &errkind.IOError{Path: s.path(k), Err: err}
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, &errkind.IOError{Path: s.path(k), Err: err}
	}
	if rec == nil {
		rec = Record{}
	}
	if err := s.hydrateArrays(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Dump writes rec for k atomically (temp file + rename), creating the
// store directory if necessary. Dense arrays over arrayInlineMaxElements
// elements are spilled to their own sidecar file rather than inlined.
func (s *Store) Dump(k Key, rec Record) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &errkind.IOError{Path: s.dir, Err: err}
	}
	target := s.path(k)
	out, err := s.spillArrays(rec, sidecarBase(k.fileName()))
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return &errkind.IOError{Path: target, Err: err}
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return &errkind.IOError{Path: target, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &errkind.IOError{Path: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &errkind.IOError{Path: target, Err: err}
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return &errkind.IOError{Path: target, Err: err}
	}
	return nil
}

// Clear deletes the on-disk record for k, if any.
func (s *Store) Clear(k Key) error {
	err := os.Remove(s.path(k))
	if err != nil && !os.IsNotExist(err) {
		return &errkind.IOError{Path: s.path(k), Err: err}
	}
	return nil
}

// sidecarBase strips the record file's extension, giving the prefix sidecar
// files are numbered against (so "status-Camera.cfg" yields "status-Camera").
func sidecarBase(recordPath string) string {
	return strings.TrimSuffix(recordPath, filepath.Ext(recordPath))
}

// spillArrays returns a copy of rec with every array over
// arrayInlineMaxElements elements written to its own sidecar file and
// replaced by a Sidecar-only reference. Iteration is over sorted names so
// repeated dumps of the same record assign the same sidecar numbering.
func (s *Store) spillArrays(rec Record, base string) (Record, error) {
	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Record, len(rec))
	counter := 0
	for _, name := range names {
		v := rec[name]
		if v.Kind != KindArray || v.Array == nil || arrayElementCount(v.Array) <= arrayInlineMaxElements {
			out[name] = v
			continue
		}
		sidecarName := fmt.Sprintf("%s-%06d.bin", base, counter)
		counter++
		if err := os.WriteFile(filepath.Join(s.dir, sidecarName), v.Array.Inline, 0644); err != nil {
			return nil, &errkind.IOError{Path: sidecarName, Err: err}
		}
		out[name] = Value{Kind: KindArray, Array: &ArrayData{
			DType:   v.Array.DType,
			Shape:   append([]int(nil), v.Array.Shape...),
			Sidecar: sidecarName,
		}}
	}
	return out, nil
}

// hydrateArrays reads every array's sidecar file (if any) back into its
// Inline bytes in place, so callers always see live data regardless of how
// it was stored on disk.
func (s *Store) hydrateArrays(rec Record) error {
	for name, v := range rec {
		if v.Kind != KindArray || v.Array == nil || v.Array.Sidecar == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, v.Array.Sidecar))
		if err != nil {
			return &errkind.IOError{Path: v.Array.Sidecar, Err: err}
		}
		v.Array.Inline = data
		rec[name] = v
	}
	return nil
}

// arrayElementCount returns the dense array's element count from its shape,
// the same quantity the source's ndarray_max_size check compares against.
func arrayElementCount(a *ArrayData) int {
	if len(a.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

type notFoundErr struct{ key Key }

func (e *notFoundErr) Error() string {
	return "no appdata record for " + e.key.ClassName + "/" + e.key.Base + "/" + e.key.Name
}
func (e *notFoundErr) Unwrap() error { return errkind.NotFound }
