package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"
)

type storageStub struct {
	uploaded bytes.Buffer
	key      string
	err      error
}

func (s *storageStub) Upload(ctx context.Context, key string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.uploaded.Reset()
	if _, err := s.uploaded.ReadFrom(reader); err != nil {
		return "", err
	}
	s.key = key
	return "https://cdn.example.com/avatars/" + key, nil
}

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestAvatarUploadRejectsSize(t *testing.T) {
	env := newTestEnv(t)
	storage := &storageStub{}
	svc := NewAvatarService(storage, NewSessionService(env.users, env.validate, testLogger()), 1, testLogger())

	file := buildFileHeader(t, "huge.png", append(pngHeader, bytes.Repeat([]byte("a"), 2*1024*1024)...))

	_, err := svc.Upload(context.Background(), "alice", file)
	require.ErrorIs(t, err, ErrUploadTooLarge)
	require.Zero(t, storage.uploaded.Len())
}

func TestAvatarUploadRejectsNonImages(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAvatarService(&storageStub{}, NewSessionService(env.users, env.validate, testLogger()), 5, testLogger())

	file := buildFileHeader(t, "notes.png", []byte("plain text pretending to be an image"))
	_, err := svc.Upload(context.Background(), "alice", file)
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)

	_, err = svc.Upload(context.Background(), "alice", nil)
	require.Error(t, err)
}

func TestAvatarUploadStoresAndUpdatesProfile(t *testing.T) {
	env := newTestEnv(t)
	storage := &storageStub{}
	svc := NewAvatarService(storage, NewSessionService(env.users, env.validate, testLogger()), 5, testLogger())

	resp, err := svc.Upload(context.Background(), "alice", buildFileHeader(t, "me.png", pngHeader))
	require.NoError(t, err)
	require.Equal(t, "image/png", resp.MimeType)
	require.Equal(t, int64(len(pngHeader)), resp.SizeBytes)
	require.Equal(t, "alice", storage.key)
	require.Equal(t, pngHeader, storage.uploaded.Bytes())

	user, err := env.users.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, resp.URL, user.ProfileImage)
}

func TestAvatarUploadStorageFailureLeavesProfile(t *testing.T) {
	env := newTestEnv(t)
	storage := &storageStub{err: errors.New("cdn down")}
	svc := NewAvatarService(storage, NewSessionService(env.users, env.validate, testLogger()), 5, testLogger())

	_, err := svc.Upload(context.Background(), "alice", buildFileHeader(t, "me.png", pngHeader))
	require.Error(t, err)

	_, err = env.users.Get(context.Background(), "alice")
	require.True(t, isMissingUser(err))
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
