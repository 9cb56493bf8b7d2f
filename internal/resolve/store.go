package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/yousuf/stackmap/internal/artifact"
)

// StoreResolver reads mapping documents from the artifact store
type StoreResolver struct {
	Store *artifact.Store
}

func (s *StoreResolver) Resolve(ctx context.Context, path string) (string, error) {
	a, err := s.Store.Get(ctx, path)
	if errors.Is(err, artifact.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return "", err
	}
	return a.Content, nil
}
