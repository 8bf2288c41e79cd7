package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/miqra/reciterid/pkg/blob"
	"github.com/miqra/reciterid/pkg/refstore"
)

// openFileStore resolves a store reference into a file store and the path
// of the store blob within it.
//
// References are either local paths ("./reciters.bin") or S3 URLs
// ("s3://bucket/prefix/reciters.bin"). S3 credentials come from the
// default AWS credential chain.
func openFileStore(ctx context.Context, ref string) (blob.FileStore, string, error) {
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("malformed S3 store reference: %s", ref)
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("load AWS config: %w", err)
		}
		prefix, name := "", key
		if i := strings.LastIndex(key, "/"); i >= 0 {
			prefix, name = key[:i], key[i+1:]
		}
		return blob.NewS3(s3.NewFromConfig(cfg), bucket, prefix), name, nil
	}

	fs, err := blob.NewLocal(filepath.Dir(ref))
	if err != nil {
		return nil, "", err
	}
	return fs, filepath.Base(ref), nil
}

// loadStore opens and decodes a reference store.
func loadStore(ctx context.Context, ref string) (*refstore.Store, error) {
	fs, path, err := openFileStore(ctx, ref)
	if err != nil {
		return nil, err
	}
	store, err := refstore.Load(ctx, fs, path)
	if err != nil {
		return nil, fmt.Errorf("load reference store %s: %w", ref, err)
	}
	return store, nil
}
