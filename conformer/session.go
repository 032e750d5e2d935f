package conformer

import (
	"github.com/google/uuid"

	"github.com/openfluke/chorale/nn"
)

// StreamingSession drives incremental decoding of one utterance. It
// owns the cache pair exclusively and threads it through InferChunk in
// arrival order, which is the ownership discipline the caches require.
// A session is single-caller state: it must not be shared between
// goroutines.
type StreamingSession struct {
	ID    uuid.UUID
	model *Model

	offset            int
	requiredCacheSize int
	att               *AttCache
	cnn               *CNNCache
}

// NewStreamingSession opens a session on the model with the given
// attention history bound (<0 unlimited, 0 none).
func NewStreamingSession(m *Model, requiredCacheSize int) *StreamingSession {
	return &StreamingSession{
		ID:                uuid.New(),
		model:             m,
		requiredCacheSize: requiredCacheSize,
	}
}

// Push feeds the next chunk of raw frames ([t, inputDim], including
// the frontend's context overlap) and returns its CTC posteriors.
func (s *StreamingSession) Push(chunk *nn.Tensor[float32]) (*nn.Tensor[float32], error) {
	probs, att, cnn, err := s.model.InferChunk(chunk, s.offset, s.requiredCacheSize, s.att, s.cnn)
	if err != nil {
		return nil, err
	}
	s.att, s.cnn = att, cnn
	s.offset += probs.Shape[0]
	return probs, nil
}

// Offset reports how many subsampled frames the session has emitted.
func (s *StreamingSession) Offset() int { return s.offset }

// Reset discards the cache state so the session can decode a new
// utterance. The session identity is preserved.
func (s *StreamingSession) Reset() {
	s.offset = 0
	s.att = nil
	s.cnn = nil
}
