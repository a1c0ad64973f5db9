package deploy

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
)

// Package describes a validated .dacpac archive.
type Package struct {
	Path    string
	Name    string
	Version string
}

type dacMetadata struct {
	Name    string `xml:"Name"`
	Version string `xml:"Version"`
}

// LoadPackage validates the .dacpac at path. The archive must contain
// model.xml. Name and version come from DacMetadata.xml when present,
// otherwise the name is the file name.
func LoadPackage(path string) (Package, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return Package{}, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	defer func() {
		_ = r.Close()
	}()

	pkg := Package{
		Path: path,
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	hasModel := false
	for _, f := range r.File {
		switch strings.ToLower(f.Name) {
		case "model.xml":
			hasModel = true
		case "dacmetadata.xml":
			meta, err := readMetadata(f)
			if err != nil {
				return Package{}, err
			}
			if meta.Name != "" {
				pkg.Name = strings.TrimSpace(meta.Name)
			}
			pkg.Version = strings.TrimSpace(meta.Version)
		}
	}
	if !hasModel {
		return Package{}, fmt.Errorf("%w: %s has no model.xml", ErrInvalidPackage, path)
	}
	return pkg, nil
}

func readMetadata(f *zip.File) (dacMetadata, error) {
	rc, err := f.Open()
	if err != nil {
		return dacMetadata{}, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	var meta dacMetadata
	if err := xml.NewDecoder(rc).Decode(&meta); err != nil {
		return dacMetadata{}, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidPackage, f.Name, err)
	}
	return meta, nil
}
