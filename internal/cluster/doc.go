/*
Package cluster groups embeddings at two granularities and turns cluster
labels into tags.

An Algorithm maps an N×D matrix to N labels. KMeans and DBSCAN are provided;
DBSCAN may label points Noise, and Run moves every such point to the nearest
cluster centroid before building clusters, so published results never contain
noise.

Tags are derived from the label and granularity:

	Tag(3, Fine)                 "fine_003"
	HierarchicalTag(3, Fine)     "cluster/fine/003"
	Tag(42, Coarse)              "coarse_042"

Results are saved as JSON:

	{
	  "clusters": [
	    {"cluster_id": 0, "granularity": 1, "image_ids": ["a", "b"], "size": 2,
	     "tag": "fine_000", "hierarchical_tag": "cluster/fine/000"}
	  ],
	  "total_images": 2,
	  "num_clusters": 1,
	  "granularity": 1
	}
*/
package cluster
