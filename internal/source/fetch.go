// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter/v2"
	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
)

const (
	getterForcedSeparator = "::"
	schemeSeparator       = "://"
	subdirSeparator       = "//"
	querySeparator        = "?"
)

// IsRemote reports whether location should be downloaded with go-getter rather than
// read from the local filesystem, e.g. "https://example.com/repos.txt" or
// "git::https://example.com/lists.git//team/repos.txt?ref=main".
func IsRemote(location string) bool {
	return strings.Contains(location, getterForcedSeparator) || strings.Contains(location, schemeSeparator)
}

// fetch downloads src into a temporary directory and returns the file's content.
func fetch(ctx context.Context, src string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "batchrun-getter-*")
	if err != nil {
		return nil, errors.Join(ErrReadSource, err)
	}

	defer os.RemoveAll(tmpDir) //nolint:errcheck

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Join(ErrReadSource, err)
	}

	req := &getter.Request{
		Src:     src,
		Dst:     filepath.Join(tmpDir, "items"),
		Pwd:     wd,
		GetMode: getter.ModeFile,
	}

	// Files inside a repository or archive have to be fetched as a directory.
	dirSrc, fileName, inDir := splitSubdirFile(src)
	if inDir {
		req.Src = dirSrc
		req.GetMode = getter.ModeDir
	}

	ctxlog.Debug(ctx, "downloading items", "src", req.Src, "file", fileName)

	client := &getter.Client{
		DisableSymlinks: true,
	}

	res, err := client.Get(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrReadSource, err)
	}

	local := res.Dst
	if inDir {
		local = filepath.Join(res.Dst, filepath.FromSlash(fileName))
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, errors.Join(ErrReadSource, fmt.Errorf("reading downloaded %s: %w", src, err))
	}

	return data, nil
}

// splitSubdirFile splits a go-getter source using the "//" subdirectory syntax into
// a source for the enclosing directory and the name of the file within it.
// Query parameters such as ?ref= stay with the directory source.
// It returns false when src does not point at a file inside a subdirectory source.
func splitSubdirFile(src string) (string, string, bool) {
	rest, query := src, ""
	if i := strings.Index(rest, querySeparator); i >= 0 {
		rest, query = rest[:i], rest[i:]
	}

	start := 0
	if i := strings.Index(rest, schemeSeparator); i >= 0 {
		start = i + len(schemeSeparator)
	}

	i := strings.Index(rest[start:], subdirSeparator)
	if i < 0 {
		return "", "", false
	}

	base := rest[:start+i]
	sub := rest[start+i+len(subdirSeparator):]

	if sub == "" || strings.HasSuffix(sub, "/") {
		return "", "", false
	}

	if dir := path.Dir(sub); dir != "." {
		base += subdirSeparator + dir
	}

	return base + query, path.Base(sub), true
}
