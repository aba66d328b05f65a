// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Clustering constants
const (
	// MinClusterSize is the minimum number of members a temporal or spatial group
	// needs to survive; smaller groups are dropped, never merged
	MinClusterSize = 20

	// MaxTimeGap is the largest gap between consecutive captures inside one
	// temporal bucket; a strictly larger gap starts a new bucket
	MaxTimeGap = 3 * time.Hour

	// SpatialEpsilon is the DBSCAN neighbourhood radius in raw lat/long degrees
	SpatialEpsilon = 0.03

	// SpatialMinPoints is the DBSCAN core point threshold
	SpatialMinPoints = 1

	// LocationBatchSize bounds concurrent location lookups
	LocationBatchSize = 16
)

// Prompt filter constants
const (
	// ClassifyBatchSize bounds concurrent image classifications
	ClassifyBatchSize = 12

	// MinLabelConfidence is the minimum label confidence that contributes to a category
	MinLabelConfidence = 0.55

	// MaxImageSize is the maximum dimension (width or height) sent to a labeling model
	MaxImageSize = 800
)

// Job constants
const (
	// ClusteringJobName is the unique name of the background clustering job
	ClusteringJobName = "media-clustering"

	// JobHistorySize is the number of finished job instances kept per name
	JobHistorySize = 10
)

// Retry constants for stream resubscription
const (
	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryMaxInterval     = 30 * time.Second
	DefaultRetryMaxElapsed      = 5 * time.Minute
)
