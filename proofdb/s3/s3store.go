package s3

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ethpandaops/zkoperator/proofdb/types"
	dtypes "github.com/ethpandaops/zkoperator/types"
)

const objectVersion uint32 = 1

// object format: [version (4 bytes)] [data length (4 bytes)] [data]
const objectHeaderSize = 8

type S3Engine struct {
	client     *minio.Client
	bucket     string
	pathPrefix string
}

func NewS3Engine(ctx context.Context, config dtypes.S3ProofStoreConfig) (*S3Engine, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.Secure,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", config.Bucket)
	}

	return &S3Engine{
		client:     client,
		bucket:     config.Bucket,
		pathPrefix: strings.TrimPrefix(config.Path, "/"),
	}, nil
}

func (e *S3Engine) Close() error {
	return nil
}

func objectKey(pathPrefix string, key types.ProofKey) string {
	return path.Join(
		pathPrefix,
		key.Kind.String(),
		fmt.Sprintf("%06d", key.FirstBlock/10000),
		fmt.Sprintf("%010d_%010d", key.FirstBlock, key.LastBlock),
	)
}

func encodeObject(data []byte) []byte {
	obj := make([]byte, objectHeaderSize, objectHeaderSize+len(data))
	binary.BigEndian.PutUint32(obj[0:4], objectVersion)
	binary.BigEndian.PutUint32(obj[4:8], uint32(len(data)))
	return append(obj, data...)
}

func decodeObject(obj []byte) ([]byte, error) {
	if len(obj) < objectHeaderSize {
		return nil, fmt.Errorf("proof object too short (%v bytes)", len(obj))
	}
	if version := binary.BigEndian.Uint32(obj[0:4]); version != objectVersion {
		return nil, fmt.Errorf("unsupported proof object version %v", version)
	}
	length := binary.BigEndian.Uint32(obj[4:8])
	if int(length) != len(obj)-objectHeaderSize {
		return nil, fmt.Errorf("proof object length mismatch: header %v, body %v", length, len(obj)-objectHeaderSize)
	}
	return obj[objectHeaderSize:], nil
}

func (e *S3Engine) GetProof(ctx context.Context, key types.ProofKey) ([]byte, error) {
	obj, err := e.client.GetObject(ctx, e.bucket, objectKey(e.pathPrefix, key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return decodeObject(raw)
}

func (e *S3Engine) AddProof(ctx context.Context, key types.ProofKey, data []byte) (bool, error) {
	objKey := objectKey(e.pathPrefix, key)

	stat, err := e.client.StatObject(ctx, e.bucket, objKey, minio.StatObjectOptions{})
	if err == nil && stat.Size > 0 {
		return false, nil
	}

	obj := encodeObject(data)
	_, err = e.client.PutObject(
		ctx,
		e.bucket,
		objKey,
		bytes.NewReader(obj),
		int64(len(obj)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	if err != nil {
		return false, fmt.Errorf("failed to upload proof: %w", err)
	}

	return true, nil
}
