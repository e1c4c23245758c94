package document

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/sentinel"
)

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := Key(id.NewProposalID(), id.NewDocumentID())

	ref, err := s.Put(ctx, key, []byte("balance sheet"), "application/pdf")
	require.NoError(t, err)

	got, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("balance sheet"), got)

	require.NoError(t, s.Delete(ctx, ref))
	_, err = s.Get(ctx, ref)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	exercise(t, NewS3Store(fake, "dealroom-docs"))

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "dealroom-docs", aws.ToString(fake.puts[0].Bucket))
	assert.Equal(t, "application/pdf", aws.ToString(fake.puts[0].ContentType))
	assert.Equal(t, types.ServerSideEncryptionAes256, fake.puts[0].ServerSideEncryption)
}

func TestKeyIsScopedByProposal(t *testing.T) {
	pid := id.NewProposalID()
	docID := id.NewDocumentID()
	assert.Equal(t, "proposals/"+pid.String()+"/"+docID.String(), Key(pid, docID))
}
