// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package files browses the server's data directory and reads image files.
package files

import (
	"strings"

	"github.com/brainage/bad-designer/pkg/model"
)

// NormalizePath returns path with exactly one leading slash. The empty
// path is the root "/".
func NormalizePath(path string) string {
	return "/" + strings.TrimLeft(path, "/")
}

// TrimTrailingSlash drops trailing slashes except the one of the root.
func TrimTrailingSlash(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" && strings.HasPrefix(path, "/") {
		return "/"
	}
	return trimmed
}

// JoinPaths joins parts with single slashes. The result starts with a
// slash and has none at the end.
//
// # Example
//
//	JoinPaths("/data/", "/subject01", "t1.nii") // "/data/subject01/t1.nii"
func JoinPaths(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return "/" + strings.Join(clean, "/")
}

// ParentPath returns the directory containing path. The parent of the
// root is the root.
func ParentPath(path string) string {
	path = TrimTrailingSlash(NormalizePath(path))
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// FileType classifies a file name. NIfTI volumes (.nii, .nii.gz) are
// model.FileTypeImage; everything else has no type.
func FileType(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz") {
		return model.FileTypeImage
	}
	return ""
}
