// Package artifact derives canonical, collision-free file identifiers for
// run artifacts and parses them back losslessly.
package artifact

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/LCLUCam/VULCAN/domain"
)

const (
	delimiter = "-"
	runToken  = "run"

	// defaultRunWidth is the zero-pad width for run numbers when the
	// namer is constructed without one.
	defaultRunWidth = 4
)

// Namer renders ArtifactRefs into the bit-exact naming convention
//
//	<out_name>-run-<run_number>-<column_id>-<file_kind>.<ext>
//
// under a configured root prefix. It is a pure function of the ref and
// its configuration; Parse is the exact inverse of Name.
type Namer struct {
	root     string
	runWidth int
}

func NewNamer(root string, runWidth int) (*Namer, error) {
	if runWidth == 0 {
		runWidth = defaultRunWidth
	}
	if runWidth < 1 || runWidth > 18 {
		return nil, fmt.Errorf("run number pad width %d outside 1..18", runWidth)
	}
	root = strings.Trim(strings.TrimSpace(root), "/")
	return &Namer{root: root, runWidth: runWidth}, nil
}

// Name derives the canonical path for ref.
func (n *Namer) Name(ref domain.ArtifactRef) (string, error) {
	if n == nil {
		return "", fmt.Errorf("namer not initialized")
	}
	if err := ref.Validate(); err != nil {
		return "", err
	}
	rendered := strconv.FormatInt(ref.RunNumber, 10)
	if len(rendered) > n.runWidth {
		return "", fmt.Errorf("%w: run number %d exceeds pad width %d", domain.ErrInvalidArtifactRef, ref.RunNumber, n.runWidth)
	}
	name := fmt.Sprintf("%s-%s-%0*d-%s-%s%s",
		ref.OutName, runToken, n.runWidth, ref.RunNumber, ref.Column.String(), ref.Kind, ref.Ext)
	if n.root == "" {
		return name, nil
	}
	return path.Join(n.root, name), nil
}

// Parse recovers the ArtifactRef a path was named from. It is total over
// the set of paths Name can produce: parse(name(ref)) == ref.
func (n *Namer) Parse(p string) (domain.ArtifactRef, error) {
	if n == nil {
		return domain.ArtifactRef{}, fmt.Errorf("namer not initialized")
	}
	name := p
	if n.root != "" {
		prefix := n.root + "/"
		if !strings.HasPrefix(p, prefix) {
			return domain.ArtifactRef{}, fmt.Errorf("%w: path %q outside root %q", domain.ErrInvalidArtifactRef, p, n.root)
		}
		name = strings.TrimPrefix(p, prefix)
	}
	if strings.Contains(name, "/") {
		return domain.ArtifactRef{}, fmt.Errorf("%w: path %q has unexpected separators", domain.ErrInvalidArtifactRef, p)
	}

	ext := path.Ext(name)
	if ext == "" {
		return domain.ArtifactRef{}, fmt.Errorf("%w: path %q has no extension", domain.ErrInvalidArtifactRef, p)
	}
	stem := strings.TrimSuffix(name, ext)

	// out_name may not contain the delimiter, so the stem splits into
	// exactly five fields.
	parts := strings.Split(stem, delimiter)
	if len(parts) != 5 || parts[1] != runToken {
		return domain.ArtifactRef{}, fmt.Errorf("%w: path %q does not match the naming convention", domain.ErrInvalidArtifactRef, p)
	}

	if len(parts[2]) != n.runWidth {
		return domain.ArtifactRef{}, fmt.Errorf("%w: run number field %q must be %d digits", domain.ErrInvalidArtifactRef, parts[2], n.runWidth)
	}
	runNumber, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("%w: run number field %q is not numeric", domain.ErrInvalidArtifactRef, parts[2])
	}

	column, err := domain.ParseColumnID(parts[3])
	if err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("%w: %v", domain.ErrInvalidArtifactRef, err)
	}

	kind, err := domain.ParseFileKind(parts[4])
	if err != nil {
		return domain.ArtifactRef{}, err
	}

	ref := domain.ArtifactRef{
		OutName:   parts[0],
		RunNumber: runNumber,
		Column:    column,
		Kind:      kind,
		Ext:       ext,
	}
	if err := ref.Validate(); err != nil {
		return domain.ArtifactRef{}, err
	}
	return ref, nil
}

// RunPrefix returns the path prefix shared by all artifacts of (outName,
// runNumber), for listing and promotion.
func (n *Namer) RunPrefix(outName string, runNumber int64) (string, error) {
	if n == nil {
		return "", fmt.Errorf("namer not initialized")
	}
	probe := domain.ArtifactRef{
		OutName:   outName,
		RunNumber: runNumber,
		Column:    domain.ColumnID{},
		Kind:      domain.FileKindOutput,
		Ext:       ".vul",
	}
	full, err := n.Name(probe)
	if err != nil {
		return "", err
	}
	cut := fmt.Sprintf("%s%s%s", delimiter, probe.Column.String(), delimiter)
	idx := strings.LastIndex(full, cut)
	return full[:idx+1], nil
}
