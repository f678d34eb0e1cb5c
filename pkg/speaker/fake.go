package speaker

import "math"

// FakeEmbedder deterministically derives a 128-dim embedding from the PCM's
// byte content rather than running an actual voice model, so pipeline
// composition and speaker-registry tests don't depend on a real embedding
// model being wired up.
type FakeEmbedder struct{}

func (FakeEmbedder) Embed(pcm []byte, sampleRate int) (Embedding, error) {
	emb := make(Embedding, embeddingDim)
	if len(pcm) == 0 {
		return emb.Normalize(), nil
	}
	for i := range emb {
		var acc int
		for j := i; j < len(pcm); j += embeddingDim {
			acc += int(pcm[j])
		}
		emb[i] = float32(math.Sin(float64(acc)))
	}
	return emb.Normalize(), nil
}
