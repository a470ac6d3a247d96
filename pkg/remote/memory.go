package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bulksync/bulksync/pkg/manifest"
)

// MemoryStore is an in-memory Store. It backs tests and local dry runs
// without touching a real destination.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject

	// ExposeChecksums controls whether List/Head report stored checksums,
	// emulating destinations that do not expose one cheaply.
	ExposeChecksums bool
}

type memoryObject struct {
	data     []byte
	checksum string
	modTime  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:         make(map[string]memoryObject),
		ExposeChecksums: true,
	}
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var objects []Object
	for path, obj := range m.objects {
		if prefix != "" && !strings.HasPrefix(path, prefix) {
			continue
		}
		objects = append(objects, m.toObject(path, obj))
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Path < objects[j].Path
	})
	return objects, nil
}

func (m *MemoryStore) Head(ctx context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	o := m.toObject(key, obj)
	return &o, nil
}

func (m *MemoryStore) Put(ctx context.Context, in *PutInput) error {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	checksum, err := manifest.ReaderChecksum(bytes.NewReader(data))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[in.Key] = memoryObject{
		data:     data,
		checksum: checksum,
		modTime:  time.Now(),
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Corrupt replaces stored bytes so the object no longer matches its
// source, making verification against it fail. Test hook.
func (m *MemoryStore) Corrupt(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return
	}
	obj.data = data
	if checksum, err := manifest.ReaderChecksum(bytes.NewReader(data)); err == nil {
		obj.checksum = checksum
	}
	m.objects[key] = obj
}

func (m *MemoryStore) toObject(path string, obj memoryObject) Object {
	o := Object{
		Path:    path,
		Size:    int64(len(obj.data)),
		ModTime: obj.modTime,
	}
	if m.ExposeChecksums {
		o.ChecksumSHA256 = obj.checksum
	}
	return o
}
