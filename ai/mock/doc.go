// Package mock provides test doubles for the ai interfaces.
//
// MockEmbedder returns deterministic vectors derived from an FNV hash of the
// text, so identical texts always embed identically and tests never need an
// embedding service. Behavior can be replaced per test:
//
//	emb := mock.NewMockEmbedder().
//	    WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
//	        return nil, errors.New("service down")
//	    })
//
//	count := emb.CallCount()
package mock
