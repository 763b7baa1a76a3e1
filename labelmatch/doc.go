// Package labelmatch decides which known question concept a form label found on a
// job application page refers to.
//
// A Catalog holds concept groups such as EMAIL or VISA_STATUS. Each group lists
// several phrasings of the question, each with an embedding and an acceptance
// threshold, and the question types (text, select, radio, ...) it applies to.
//
// # Pipeline
//
// Offline, a Generator embeds human-written Definitions into a Catalog and a
// Calibrator derives per-label thresholds from the similarity of each label to
// its siblings. Online, a Matcher resolves a Question in two passes:
//
//  1. Exact: the discovered label, normalized, equals a catalog label. The
//     result is that group with score 1.
//  2. Semantic: the label is embedded once and compared against every eligible
//     catalog label; comparisons below the label threshold are discarded and the
//     best score per group is kept.
//
// # Embeddings
//
// A Provider owns the embedding backend for the whole process. The backend is
// loaded on first use, concurrent first callers share one load, and a failed
// load is retried on the next call. Provider.Verify must be called at startup
// to reject a catalog built with a different model or dimensionality.
//
// # Errors
//
// Setup problems wrap ErrConfiguration (ErrDimensionMismatch, ErrModelMismatch)
// and are fatal. Catalog decoding problems wrap ErrMalformedCatalog. Backend
// failures wrap ErrProvider; the Matcher logs them and returns no match.
package labelmatch
