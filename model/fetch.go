// Copyright 2026 The onnxruntime-go Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GCSPrefix marks model references stored in Google Cloud Storage.
const GCSPrefix = "gs://"

// Fetch resolves a model reference to a local file path. Local paths are returned
// as-is (after checking they exist); gs://bucket/object references are downloaded
// into the user cache directory and reused on later calls.
func Fetch(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, GCSPrefix) {
		if _, err := os.Stat(ref); err != nil {
			return "", errors.Wrapf(err, "model file %s", ref)
		}
		return ref, nil
	}

	bucket, object, found := strings.Cut(strings.TrimPrefix(ref, GCSPrefix), "/")
	if !found || bucket == "" || object == "" {
		return "", errors.Errorf("malformed GCS model reference %q, want gs://bucket/object", ref)
	}

	cacheDir, err := cacheDirFor(ref)
	if err != nil {
		return "", err
	}
	destination := filepath.Join(cacheDir, filepath.Base(object))
	if _, err := os.Stat(destination); err == nil {
		klog.V(1).InfoS("model already cached", "ref", ref, "path", destination)
		return destination, nil
	}

	if err := download(ctx, bucket, object, destination); err != nil {
		return "", err
	}
	return destination, nil
}

// cacheDirFor returns (and creates) a per-reference cache directory, keyed by the
// reference's digest so distinct objects with the same base name don't collide.
func cacheDirFor(ref string) (string, error) {
	userCache, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "locating user cache directory")
	}
	digest := sha256.Sum256([]byte(ref))
	dir := filepath.Join(userCache, "onnxruntime", "models", hex.EncodeToString(digest[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating model cache directory %s", dir)
	}
	return dir, nil
}

func download(ctx context.Context, bucket, object, destination string) error {
	klog.InfoS("downloading model from GCS", "source", GCSPrefix+bucket+"/"+object, "destination", destination)
	startedAt := time.Now()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return errors.Wrap(err, "creating GCS storage client")
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return errors.Wrapf(err, "opening gs://%s/%s", bucket, object)
	}
	defer r.Close()

	n, err := writeToFile(r, destination)
	if err != nil {
		return errors.Wrapf(err, "downloading gs://%s/%s", bucket, object)
	}
	klog.InfoS("downloaded model from GCS", "destination", destination,
		"bytes", n, "duration", time.Since(startedAt))
	return nil
}

// writeToFile streams src into destination through a temp file in the same
// directory, so a partial download never shows up under the final name.
func writeToFile(src io.Reader, destination string) (int64, error) {
	tempFile, err := os.CreateTemp(filepath.Dir(destination), "download")
	if err != nil {
		return 0, errors.Wrap(err, "creating temp file")
	}
	tempName := tempFile.Name()
	defer func() {
		// No-ops once the rename succeeded.
		_ = tempFile.Close()
		_ = os.Remove(tempName)
	}()

	n, err := io.Copy(tempFile, src)
	if err != nil {
		return n, err
	}
	if err := tempFile.Close(); err != nil {
		return n, errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tempName, destination); err != nil {
		return n, errors.Wrap(err, "renaming temp file")
	}
	return n, nil
}
