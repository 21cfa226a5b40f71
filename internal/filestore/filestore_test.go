package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterDoc struct {
	Count   int      `json:"count"`
	Writers []string `json:"writers"`
}

func TestUpdate_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	l := NewLocker(5, 10*time.Millisecond)

	err := Update(context.Background(), l, path, func(doc *counterDoc) error {
		assert.Zero(t, doc.Count)
		doc.Count = 7
		return nil
	})
	require.NoError(t, err)

	doc, err := Read[counterDoc](context.Background(), l, path)
	require.NoError(t, err)
	assert.Equal(t, 7, doc.Count)
}

func TestUpdate_MutatorErrorLeavesFileAndReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	l := NewLocker(0, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, Update(ctx, l, path, func(doc *counterDoc) error {
		doc.Count = 1
		return nil
	}))

	boom := errors.New("boom")
	err := Update(ctx, l, path, func(doc *counterDoc) error {
		doc.Count = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Zero retries: would fail with ErrLockTimeout if the lock leaked.
	doc, err := Read[counterDoc](ctx, l, path)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Count)
}

func TestUpdate_ConcurrentMutatorsSerialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	l := NewLocker(200, 2*time.Millisecond)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- Update(ctx, l, path, func(doc *counterDoc) error {
				seen := doc.Count
				time.Sleep(5 * time.Millisecond)
				doc.Count = seen + 1
				doc.Writers = append(doc.Writers, "w")
				return nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := Read[counterDoc](ctx, l, path)
	require.NoError(t, err)
	assert.Equal(t, n, doc.Count)
	assert.Len(t, doc.Writers, n)
}

func TestWithLockedFile_Timeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	held := flock.New(path + ".lock")
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	l := NewLocker(2, time.Millisecond)
	err = l.WithLockedFile(context.Background(), path, func(data []byte) ([]byte, error) {
		t.Fatal("mutator must not run without the lock")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestWithLockedFile_NilResultSkipsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	l := NewLocker(1, time.Millisecond)

	err := l.WithLockedFile(context.Background(), path, func(data []byte) ([]byte, error) {
		assert.Nil(t, data)
		return nil, nil
	})
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestUpdate_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	l := NewLocker(1, time.Millisecond)
	err := Update(context.Background(), l, path, func(doc *counterDoc) error { return nil })
	assert.Error(t, err)
}
