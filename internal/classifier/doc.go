// Package classifier decides whether a candidate track pair is a genuine
// spindle. Models are logistic regressions over the pairing features,
// trained by gradient descent and immutable once built.
package classifier
