// Package embedding turns thumbnails into fixed-length feature vectors.
//
// An Extractor is the model: GridExtractor is built in, CommandExtractor
// delegates to an external program. Stage.ExtractAll runs an extractor over
// a batch with bounded parallelism and persists the result as
//
//	embeddings.npy  float32 matrix, one row per image (NumPy format)
//	meta.json       {"image_ids": [...], "model_name": ..., "dimension": D, "count": N}
//
// Rows are ordered by image identity.
package embedding
