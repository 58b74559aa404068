// Package s3 stores swapped-out chunks in Amazon S3 and indexes them in a
// DynamoDB table.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("grids/dem"))
//	manifest, err := s3.NewDDB(ctx, "gridstore-manifest", "s3://my-bucket/grids/dem")
//
//	g, err := gridstore.New[float64](rows, cols, math.NaN(),
//	    gridstore.WithSwapStore(store),
//	    gridstore.WithManifest(manifest),
//	)
//
// Reads are ranged GetObject calls; listing follows ListObjectsV2 pagination.
package s3
