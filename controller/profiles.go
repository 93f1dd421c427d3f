package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/LCLUCam/VULCAN/domain"
	"github.com/LCLUCam/VULCAN/storage/artifacts"
)

// FinalProfileReader loads prior column outputs from the promoted
// artifact tier, which is the only tier a new run reads from.
type FinalProfileReader struct {
	tiers *artifacts.Tiers
}

func NewFinalProfileReader(tiers *artifacts.Tiers) (*FinalProfileReader, error) {
	if tiers == nil {
		return nil, errors.New("artifact tiers are required")
	}
	return &FinalProfileReader{tiers: tiers}, nil
}

func (r *FinalProfileReader) ReadProfile(ctx context.Context, key string) (domain.Profile, error) {
	if r == nil || r.tiers == nil {
		return domain.Profile{}, errors.New("profile reader not initialized")
	}
	data, err := r.tiers.GetFinal(ctx, key)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("read prior output %s: %w", key, err)
	}
	return domain.DecodeProfile(data)
}
