package bencode

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// TorrentFile is one payload file inside a torrent.
type TorrentFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// TorrentMeta is the subset of a decoded metainfo file the matcher needs.
type TorrentMeta struct {
	InfoHash  string        `json:"infoHash"`
	Name      string        `json:"name"`
	TotalSize int64         `json:"totalSize"`
	Files     []TorrentFile `json:"files"`
}

// InfoHash computes the content hash of a raw metainfo file: the hex SHA-1
// of the canonical encoding of its info dictionary. This reproduces the
// identifier the BitTorrent network uses for the release.
func InfoHash(raw []byte) (string, error) {
	root, err := Decode(raw)
	if err != nil {
		return "", err
	}
	return infoHashOf(root)
}

func infoHashOf(root Value) (string, error) {
	if root.Kind != KindDict {
		return "", fmt.Errorf("%w: metainfo root is not a dictionary", ErrMalformed)
	}
	info, ok := root.Dict["info"]
	if !ok || info.Kind != KindDict {
		return "", ErrMissingInfo
	}
	sum := sha1.Sum(Encode(info))
	return hex.EncodeToString(sum[:]), nil
}

// ParseMeta decodes a raw metainfo file into a TorrentMeta, flattening both
// single-file and multi-file layouts into one file list. Multi-file paths
// are joined below the torrent name, mirroring the on-disk layout a client
// creates.
func ParseMeta(raw []byte) (*TorrentMeta, error) {
	root, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	hash, err := infoHashOf(root)
	if err != nil {
		return nil, err
	}

	info := root.Dict["info"]
	meta := &TorrentMeta{InfoHash: hash}

	if name, ok := info.Dict["name"]; ok && name.Kind == KindBytes {
		meta.Name = string(name.Bytes)
	}

	if length, ok := info.Dict["length"]; ok && length.Kind == KindInteger {
		// Single-file layout: name is the file.
		meta.Files = []TorrentFile{{Path: meta.Name, Size: length.Int}}
		meta.TotalSize = length.Int
		return meta, nil
	}

	files, ok := info.Dict["files"]
	if !ok || files.Kind != KindList {
		return nil, fmt.Errorf("%w: info has neither length nor files", ErrMalformed)
	}
	for _, f := range files.List {
		if f.Kind != KindDict {
			return nil, fmt.Errorf("%w: file entry is not a dictionary", ErrMalformed)
		}
		length, ok := f.Dict["length"]
		if !ok || length.Kind != KindInteger {
			return nil, fmt.Errorf("%w: file entry has no length", ErrMalformed)
		}
		pathVal, ok := f.Dict["path"]
		if !ok || pathVal.Kind != KindList {
			return nil, fmt.Errorf("%w: file entry has no path", ErrMalformed)
		}
		parts := make([]string, 0, len(pathVal.List)+1)
		parts = append(parts, meta.Name)
		for _, p := range pathVal.List {
			if p.Kind != KindBytes {
				return nil, fmt.Errorf("%w: path segment is not a string", ErrMalformed)
			}
			parts = append(parts, string(p.Bytes))
		}
		meta.Files = append(meta.Files, TorrentFile{
			Path: filepath.ToSlash(filepath.Join(parts...)),
			Size: length.Int,
		})
		meta.TotalSize += length.Int
	}

	return meta, nil
}
