// Package minio stores swapped-out chunks on MinIO or any other
// S3-compatible server through the MinIO client.
//
//	store, err := minio.Dial(ctx, "localhost:9000", "minioadmin", "minioadmin", false,
//	    "grids", "dem/")
//
// Use it where the AWS SDK stack is not wanted, for example air-gapped
// deployments backed by Ceph, Garage or SeaweedFS.
package minio
