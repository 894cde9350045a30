package sync

import (
	"context"

	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

// ProcessFileForTest exposes the per-file state machine to black-box tests.
func (uc *UseCase) ProcessFileForTest(ctx context.Context, file *model.SourceFile) model.FileResult {
	return uc.processFile(ctx, file)
}

func (uc *UseCase) WorkersForTest() int {
	return uc.workers
}
