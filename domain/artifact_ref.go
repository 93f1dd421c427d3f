package domain

import (
	"fmt"
	"strings"
)

// FileKind names the role of a run artifact.
type FileKind string

const (
	FileKindCfg       FileKind = "cfgFile"
	FileKindOutput    FileKind = "output"
	FileKindPlot      FileKind = "plot"
	FileKindModifyAtm FileKind = "modify_atm"
	FileKindLog       FileKind = "log"
)

// allowedExts lists the legal extension(s) per file kind.
var allowedExts = map[FileKind][]string{
	FileKindCfg:       {".txt"},
	FileKindOutput:    {".vul"},
	FileKindPlot:      {".eps", ".png"},
	FileKindModifyAtm: {".json"},
	FileKindLog:       {".txt"},
}

// ArtifactRef is the pure value an artifact name is derived from. The
// namer is a deterministic, losslessly reversible function over it.
type ArtifactRef struct {
	OutName   string
	RunNumber int64
	Column    ColumnID
	Kind      FileKind
	Ext       string
}

func (r ArtifactRef) Validate() error {
	if strings.TrimSpace(r.OutName) == "" {
		return fmt.Errorf("%w: out_name is required", ErrInvalidArtifactRef)
	}
	if strings.ContainsAny(r.OutName, "-/ ") {
		return fmt.Errorf("%w: out_name %q contains reserved characters", ErrInvalidArtifactRef, r.OutName)
	}
	if r.RunNumber < 1 {
		return fmt.Errorf("%w: run number %d must be >= 1", ErrInvalidArtifactRef, r.RunNumber)
	}
	if err := r.Column.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArtifactRef, err)
	}
	exts, ok := allowedExts[r.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown file kind %q", ErrInvalidArtifactRef, r.Kind)
	}
	for _, ext := range exts {
		if r.Ext == ext {
			return nil
		}
	}
	return fmt.Errorf("%w: extension %q not allowed for kind %q", ErrInvalidArtifactRef, r.Ext, r.Kind)
}

// ParseFileKind maps a rendered kind token back to its FileKind.
func ParseFileKind(s string) (FileKind, error) {
	kind := FileKind(s)
	if _, ok := allowedExts[kind]; !ok {
		return "", fmt.Errorf("%w: unknown file kind %q", ErrInvalidArtifactRef, s)
	}
	return kind, nil
}
