package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/foodgram/internal/imagedata"
)

var keyPattern = regexp.MustCompile(`^recipes/pic_[0-9a-f]{8}\.png$`)

func testImage() *imagedata.Image {
	return &imagedata.Image{Data: []byte("pixels"), ContentType: "image/png", Ext: "png"}
}

// =========================================================================
// LOCAL STORE
// =========================================================================

func TestLocalStore_SaveURLDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "http://localhost:8080/media/")
	require.NoError(t, err)

	key, err := store.Save(context.Background(), "recipes", testImage())
	require.NoError(t, err)
	assert.Regexp(t, keyPattern, key)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), data)

	assert.Equal(t, "http://localhost:8080/media/"+key, store.URL(key))
	assert.Equal(t, "", store.URL(""))

	require.NoError(t, store.Delete(context.Background(), key))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(key)))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(context.Background(), key))
}

func TestLocalStore_KeysAreUnique(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)

	a, _ := store.Save(context.Background(), "recipes", testImage())
	b, _ := store.Save(context.Background(), "recipes", testImage())
	assert.NotEqual(t, a, b)
}

func TestLocalStore_NameCollisionDoesNotOverwrite(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "/media")
	require.NoError(t, err)

	taken := "recipes/pic_00000000.png"
	require.NoError(t, os.MkdirAll(filepath.Join(root, "recipes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(taken)), []byte("original"), 0o644))

	keys := []string{taken, "recipes/pic_11111111.png"}
	store.newKey = func(string, string) string {
		k := keys[0]
		keys = keys[1:]
		return k
	}

	key, err := store.Save(context.Background(), "recipes", testImage())
	require.NoError(t, err)
	assert.Equal(t, "recipes/pic_11111111.png", key)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(taken)))
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestLocalStore_GivesUpWhenEveryNameIsTaken(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "/media")
	require.NoError(t, err)

	taken := "recipes/pic_00000000.png"
	require.NoError(t, os.MkdirAll(filepath.Join(root, "recipes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(taken)), []byte("original"), 0o644))
	store.newKey = func(string, string) string { return taken }

	_, err = store.Save(context.Background(), "recipes", testImage())
	assert.Error(t, err)
}

// =========================================================================
// S3 STORE
// =========================================================================

type fakeS3 struct {
	puts    map[string][]byte
	deletes []string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.puts[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_SaveAndDelete(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}}
	store := newS3Store(fake, "bucket", "https://cdn.example.com")

	key, err := store.Save(context.Background(), "recipes", testImage())
	require.NoError(t, err)
	assert.Regexp(t, keyPattern, key)
	assert.Equal(t, []byte("pixels"), fake.puts[key])
	assert.Equal(t, "https://cdn.example.com/"+key, store.URL(key))

	require.NoError(t, store.Delete(context.Background(), key))
	assert.Equal(t, []string{key}, fake.deletes)

	// Empty keys never reach the bucket.
	require.NoError(t, store.Delete(context.Background(), ""))
	assert.Len(t, fake.deletes, 1)
}

func TestS3Store_UploadError(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}, err: errors.New("access denied")}
	store := newS3Store(fake, "bucket", "https://cdn.example.com")

	_, err := store.Save(context.Background(), "recipes", testImage())
	assert.ErrorContains(t, err, "access denied")
}
