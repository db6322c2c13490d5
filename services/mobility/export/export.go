// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes run outputs to a local file or a GCS object.
//
// A destination is either a filesystem path or gs://bucket/object. Local
// files are replaced atomically through a temporary file in the same
// directory; an existing file is only overwritten by a complete one.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/AleutianMobility/services/mobility/aggregate"
)

const gcsScheme = "gs://"

var (
	// ErrInvalidDestination is returned for an empty path or a malformed
	// gs:// URL.
	ErrInvalidDestination = errors.New("invalid export destination")

	// ErrCredentialsNotFound is returned when a configured service account
	// key file does not exist.
	ErrCredentialsNotFound = errors.New("service account key not found")
)

// Destination is a parsed output location.
type Destination struct {
	// Path is set for local destinations.
	Path string

	// Bucket and Object are set for GCS destinations.
	Bucket string
	Object string
}

// IsGCS reports whether d names a GCS object.
func (d Destination) IsGCS() bool {
	return d.Bucket != ""
}

func (d Destination) String() string {
	if d.IsGCS() {
		return gcsScheme + d.Bucket + "/" + d.Object
	}
	return d.Path
}

// ParseDestination parses a local path or gs://bucket/object.
func ParseDestination(s string) (Destination, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Destination{}, fmt.Errorf("%w: empty", ErrInvalidDestination)
	}
	if !strings.HasPrefix(s, gcsScheme) {
		return Destination{Path: s}, nil
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(s, gcsScheme), "/")
	if !ok || bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return Destination{}, fmt.Errorf("%w: %q", ErrInvalidDestination, s)
	}
	return Destination{Bucket: bucket, Object: object}, nil
}

// Options configures remote writes.
type Options struct {
	// CredentialsFile is a service account key for GCS. Empty uses
	// application default credentials.
	CredentialsFile string

	// ContentType is set on GCS objects. Default: text/csv.
	ContentType string
}

// Write streams the output of encode to dest.
//
// Description:
//
//	For a local path, encode writes to a temporary file that is renamed
//	over dest once encode and the file close succeed. For a GCS object,
//	encode writes through a storage writer; the object only appears when
//	the writer closes without error.
//
// Inputs:
//
//	ctx - Context for the GCS client and upload.
//	dest - Local path or gs://bucket/object.
//	opts - Remote write options.
//	encode - Writes the payload.
//
// Outputs:
//
//	error - Non-nil if the destination is invalid or any write fails.
func Write(ctx context.Context, dest string, opts Options, encode func(io.Writer) error) error {
	d, err := ParseDestination(dest)
	if err != nil {
		return err
	}
	if d.IsGCS() {
		err = writeGCS(ctx, d, opts, encode)
	} else {
		err = writeLocal(d.Path, encode)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", d, err)
	}
	slog.Info("export written", slog.String("destination", d.String()))
	return nil
}

// WriteMerged writes the merged table as CSV to dest.
func WriteMerged(ctx context.Context, dest string, opts Options, m *aggregate.MergedTable) error {
	return Write(ctx, dest, opts, func(w io.Writer) error {
		return aggregate.WriteCSV(w, m)
	})
}

// WriteJSON writes v as indented JSON to dest.
func WriteJSON(ctx context.Context, dest string, opts Options, v any) error {
	if opts.ContentType == "" {
		opts.ContentType = "application/json"
	}
	return Write(ctx, dest, opts, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func writeLocal(path string, encode func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if err := encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func writeGCS(ctx context.Context, d Destination, opts Options, encode func(io.Writer) error) error {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); err != nil {
			return fmt.Errorf("%w: %s", ErrCredentialsNotFound, opts.CredentialsFile)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("create GCS storage client: %w", err)
	}
	defer client.Close()

	// Cancelling ctx aborts the upload and leaves no partial object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := client.Bucket(d.Bucket).Object(d.Object).NewWriter(wctx)
	w.ContentType = opts.ContentType
	if w.ContentType == "" {
		w.ContentType = "text/csv"
	}
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if err := encode(w); err != nil {
		cancel()
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer: %w", err)
	}
	return nil
}
