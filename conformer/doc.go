// Package conformer implements the training and inference core of a
// conformer speech-recognition model: global feature normalization, a
// chunk-capable conformer encoder, a bidirectional attention decoder,
// CTC and label-smoothed attention losses, and the orchestrating model
// that blends them.
//
// Training:
//
//	model, _ := conformer.NewOnlineModel(cfg)
//	bundle, _ := model.Forward(speech, speechLens, text, textLens)
//
// Streaming inference:
//
//	sess := conformer.NewStreamingSession(model, 16)
//	probs, _ := sess.Push(chunk)
//
// All calls compute synchronously and fail fast: a detected shape or
// length violation aborts the call with a typed error and commits no
// partial state.
package conformer
